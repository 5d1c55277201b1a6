package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/musaix/pkg/filestore"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/provider"
	"github.com/igolaizola/musaix/pkg/storage"
	"github.com/igolaizola/musaix/pkg/studio"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string
	Proxy  string

	Genre string
	Mood  string
	Topic string
	Input string
	Limit int

	Output     string
	FullLyrics bool
	Timeout    time.Duration

	Provider provider.Config
}

type prompt struct {
	Genre string `json:"genre" csv:"genre"`
	Mood  string `json:"mood" csv:"mood"`
	Topic string `json:"topic" csv:"topic"`
}

// Run generates tracks from the command line form or from an input file.
func Run(ctx context.Context, cfg *Config) error {
	var count int
	log.Println("compose: started")
	defer func() {
		log.Printf("compose: ended (%d)\n", count)
	}()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	prompts := []*prompt{{Genre: cfg.Genre, Mood: cfg.Mood, Topic: cfg.Topic}}
	if cfg.Input != "" {
		var err error
		prompts, err = readPrompts(cfg.Input)
		if err != nil {
			return err
		}
	}
	if cfg.Output != "" {
		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			return fmt.Errorf("compose: couldn't create output folder: %w", err)
		}
	}

	var store *storage.Store
	if cfg.DBType != "" {
		var err error
		store, err = storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("compose: couldn't create orm store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("compose: couldn't start orm store: %w", err)
		}
		defer func() { _ = store.Close() }()
	}
	var fs *filestore.Store
	if cfg.FSType != "" {
		var err error
		fs, err = filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug, store)
		if err != nil {
			return fmt.Errorf("compose: couldn't create file storage: %w", err)
		}
	}

	pcfg := cfg.Provider
	pcfg.Debug = cfg.Debug
	if pcfg.Proxy == "" {
		pcfg.Proxy = cfg.Proxy
	}
	gen, err := provider.New(ctx, &pcfg, store)
	if err != nil {
		return fmt.Errorf("compose: couldn't create provider: %w", err)
	}
	scfg := &studio.Config{
		Generator:  gen,
		TextModel:  gen.TextModel,
		ImageModel: gen.ImageModel,
		Timeout:    cfg.Timeout,
		Debug:      cfg.Debug,
	}
	if store != nil {
		scfg.Archive = studio.NewArchive(store, fs, gen.Name)
	}
	st, err := studio.New(scfg)
	if err != nil {
		return fmt.Errorf("compose: couldn't create studio: %w", err)
	}
	defer st.Close()

	for _, p := range prompts {
		if cfg.Limit > 0 && count >= cfg.Limit {
			break
		}
		debug("compose: %s / %s / %s", p.Genre, p.Mood, p.Topic)
		form := studio.Form{Genre: p.Genre, Mood: p.Mood, Topic: p.Topic}
		form = defaults(form)
		track, err := st.Generate(ctx, form)
		if err != nil {
			return fmt.Errorf("compose: couldn't generate track: %w", err)
		}
		if cfg.FullLyrics {
			if err := st.FullLyrics(ctx); err != nil {
				return fmt.Errorf("compose: couldn't write lyrics: %w", err)
			}
			if t, _ := st.Player().Current(); t != nil {
				track = t
			}
		}
		count++
		log.Printf("compose: %s %q (%s, %d BPM, %s)\n", track.ID, track.Concept.Title, track.Concept.Style, track.Concept.BPM, track.Concept.Key)
		if cfg.Output == "" {
			continue
		}
		if err := write(cfg.Output, track); err != nil {
			return err
		}
	}
	return nil
}

func defaults(f studio.Form) studio.Form {
	d := studio.DefaultForm()
	if strings.TrimSpace(f.Genre) == "" {
		f.Genre = d.Genre
	}
	if strings.TrimSpace(f.Mood) == "" {
		f.Mood = d.Mood
	}
	if strings.TrimSpace(f.Topic) == "" {
		f.Topic = d.Topic
	}
	return f
}

func readPrompts(input string) ([]*prompt, error) {
	b, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("compose: couldn't read input file: %w", err)
	}
	var ps []*prompt
	switch ext := filepath.Ext(input); ext {
	case ".json":
		if err := json.Unmarshal(b, &ps); err != nil {
			return nil, fmt.Errorf("compose: couldn't unmarshal input: %w", err)
		}
	case ".csv":
		if err := gocsv.UnmarshalBytes(b, &ps); err != nil {
			return nil, fmt.Errorf("compose: couldn't unmarshal input: %w", err)
		}
	default:
		return nil, fmt.Errorf("compose: unsupported input format: %s", ext)
	}
	if len(ps) == 0 {
		return nil, fmt.Errorf("compose: no prompts in %s", input)
	}
	return ps, nil
}

type output struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	Genre     string        `json:"genre"`
	Mood      string        `json:"mood"`
	Topic     string        `json:"topic"`
	Concept   music.Concept `json:"concept"`
	Cover     string        `json:"cover,omitempty"`
}

// write stores the cover art and the track description in the output folder.
func write(dir string, t *music.Track) error {
	name := studio.CoverFilename(t)
	out := output{
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
		Genre:     t.Genre,
		Mood:      t.Mood,
		Topic:     t.Topic,
		Concept:   t.Concept,
	}
	if t.Cover != nil && len(t.Cover.Data) > 0 {
		if err := os.WriteFile(filepath.Join(dir, name), t.Cover.Data, 0644); err != nil {
			return fmt.Errorf("compose: couldn't write cover: %w", err)
		}
		out.Cover = name
	}
	js, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("compose: couldn't marshal track: %w", err)
	}
	jsName := strings.TrimSuffix(name, filepath.Ext(name)) + ".json"
	if err := os.WriteFile(filepath.Join(dir, jsName), js, 0644); err != nil {
		return fmt.Errorf("compose: couldn't write track: %w", err)
	}
	return nil
}
