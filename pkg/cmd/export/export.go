package export

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
	"github.com/igolaizola/musaix/pkg/storage"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	Output   string
	Genre    string
	Provider string
	Limit    int
}

type record struct {
	ID               string  `json:"id" csv:"id" yaml:"id"`
	CreatedAt        string  `json:"createdAt" csv:"created_at" yaml:"created_at"`
	Provider         string  `json:"provider" csv:"provider" yaml:"provider"`
	Genre            string  `json:"genre" csv:"genre" yaml:"genre"`
	Mood             string  `json:"mood" csv:"mood" yaml:"mood"`
	Topic            string  `json:"topic" csv:"topic" yaml:"topic"`
	Title            string  `json:"title" csv:"title" yaml:"title"`
	Style            string  `json:"style" csv:"style" yaml:"style"`
	BPM              int     `json:"bpm" csv:"bpm" yaml:"bpm"`
	Key              string  `json:"key" csv:"key" yaml:"key"`
	Chords           string  `json:"chords" csv:"chords" yaml:"chords"`
	Lyrics           string  `json:"lyrics" csv:"lyrics" yaml:"lyrics"`
	Description      string  `json:"description" csv:"description" yaml:"description"`
	Energy           float64 `json:"energy" csv:"energy" yaml:"energy"`
	Valence          float64 `json:"valence" csv:"valence" yaml:"valence"`
	Danceability     float64 `json:"danceability" csv:"danceability" yaml:"danceability"`
	Acousticness     float64 `json:"acousticness" csv:"acousticness" yaml:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness" csv:"instrumentalness" yaml:"instrumentalness"`
	HasCover         bool    `json:"hasCover" csv:"has_cover" yaml:"has_cover"`
}

func newRecord(v *storage.Track) *record {
	return &record{
		ID:               v.ID,
		CreatedAt:        v.CreatedAt.UTC().Format(time.RFC3339),
		Provider:         v.Provider,
		Genre:            v.Genre,
		Mood:             v.Mood,
		Topic:            v.Topic,
		Title:            v.Title,
		Style:            v.Style,
		BPM:              v.BPM,
		Key:              v.Key,
		Chords:           strings.Join(v.Chords, " - "),
		Lyrics:           strings.Join(v.Lyrics, "\n"),
		Description:      v.Description,
		Energy:           v.Energy,
		Valence:          v.Valence,
		Danceability:     v.Danceability,
		Acousticness:     v.Acousticness,
		Instrumentalness: v.Instrumentalness,
		HasCover:         v.HasCover,
	}
}

const pageSize = 100

// Run exports the stored tracks to a csv, json or yaml file.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("export: started")
	defer log.Println("export: ended")

	marshal, err := marshaler(cfg.Output)
	if err != nil {
		return err
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("export: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("export: couldn't start orm store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var filters []storage.Filter
	if cfg.Genre != "" {
		filters = append(filters, storage.Where("genre = ?", cfg.Genre))
	}
	if cfg.Provider != "" {
		filters = append(filters, storage.Where("provider = ?", cfg.Provider))
	}

	records := []*record{}
	for page := 1; ; page++ {
		tracks, err := store.ListTracks(ctx, page, pageSize, "created_at asc, id asc", filters...)
		if err != nil {
			return fmt.Errorf("export: couldn't list tracks: %w", err)
		}
		for _, t := range tracks {
			if cfg.Limit > 0 && len(records) >= cfg.Limit {
				break
			}
			records = append(records, newRecord(t))
		}
		if len(tracks) < pageSize || (cfg.Limit > 0 && len(records) >= cfg.Limit) {
			break
		}
	}

	b, err := marshal(records)
	if err != nil {
		return fmt.Errorf("export: couldn't marshal tracks: %w", err)
	}
	if err := os.WriteFile(cfg.Output, b, 0644); err != nil {
		return fmt.Errorf("export: couldn't write output: %w", err)
	}
	log.Printf("export: %d tracks written to %s\n", len(records), cfg.Output)
	return nil
}

func marshaler(output string) (func([]*record) ([]byte, error), error) {
	switch ext := filepath.Ext(output); ext {
	case ".csv":
		return func(rs []*record) ([]byte, error) {
			return gocsv.MarshalBytes(&rs)
		}, nil
	case ".json":
		return func(rs []*record) ([]byte, error) {
			return json.MarshalIndent(rs, "", "  ")
		}, nil
	case ".yaml", ".yml":
		return func(rs []*record) ([]byte, error) {
			return yaml.Marshal(rs)
		}, nil
	default:
		return nil, fmt.Errorf("export: unsupported output format: %q", ext)
	}
}
