package radar

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/igolaizola/musaix/pkg/radar"
	"github.com/igolaizola/musaix/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	// ID of the track, the latest one if empty
	ID     string
	Output string
}

// Run renders the mood chart of a stored track.
func Run(ctx context.Context, cfg *Config) error {
	if cfg.Output == "" {
		return errors.New("radar: output is empty")
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(cfg.Output)), ".")
	if format == "" {
		return fmt.Errorf("radar: output %s has no extension", cfg.Output)
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("radar: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("radar: couldn't start orm store: %w", err)
	}
	defer func() { _ = store.Close() }()

	var track *storage.Track
	if cfg.ID != "" {
		track, err = store.GetTrack(ctx, cfg.ID)
		if err != nil {
			return fmt.Errorf("radar: couldn't get track %s: %w", cfg.ID, err)
		}
	} else {
		tracks, err := store.ListTracks(ctx, 1, 1, "created_at desc, id desc")
		if err != nil {
			return fmt.Errorf("radar: couldn't list tracks: %w", err)
		}
		if len(tracks) == 0 {
			return fmt.Errorf("radar: %w", storage.ErrNotFound)
		}
		track = tracks[0]
	}

	t := track.Music()
	b, err := radar.Plot(t.Concept.MoodAnalysis, t.Concept.Title, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfg.Output, b, 0644); err != nil {
		return fmt.Errorf("radar: couldn't write output: %w", err)
	}
	log.Printf("radar: %q written to %s\n", t.Concept.Title, cfg.Output)
	return nil
}
