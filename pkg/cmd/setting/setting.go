package setting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/igolaizola/musaix/pkg/provider"
	"github.com/igolaizola/musaix/pkg/storage"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string

	// Action is one of set, get, delete or list
	Action   string
	Provider string
	Value    string
}

func Run(ctx context.Context, cfg *Config) error {
	return run(ctx, cfg, os.Stdout)
}

func run(ctx context.Context, cfg *Config, w io.Writer) error {
	var id string
	if cfg.Action != "list" {
		var err error
		id, err = provider.SettingID(cfg.Provider)
		if err != nil {
			return fmt.Errorf("setting: %w", err)
		}
	}
	if cfg.Action == "set" && cfg.Value == "" {
		return errors.New("setting: value is empty")
	}

	store, err := storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
	if err != nil {
		return fmt.Errorf("setting: couldn't create orm store: %w", err)
	}
	if err := store.Start(ctx); err != nil {
		return fmt.Errorf("setting: couldn't start orm store: %w", err)
	}
	defer func() { _ = store.Close() }()

	switch cfg.Action {
	case "set":
		s := storage.Setting{
			ID:    id,
			Value: cfg.Value,
		}
		if err := store.SetSetting(ctx, &s); err != nil {
			return fmt.Errorf("setting: couldn't save %s: %w", id, err)
		}
		fmt.Fprintf(w, "%s %s\n", id, s.Masked())
	case "get":
		s, err := store.GetSetting(ctx, id)
		if err != nil {
			return fmt.Errorf("setting: couldn't get %s: %w", id, err)
		}
		fmt.Fprintf(w, "%s %s\n", s.ID, s.Masked())
	case "delete":
		if err := store.DeleteSetting(ctx, id); err != nil {
			return fmt.Errorf("setting: couldn't delete %s: %w", id, err)
		}
	case "list":
		settings, err := store.ListSettings(ctx, 1, len(storage.SettingIDs))
		if err != nil {
			return fmt.Errorf("setting: couldn't list settings: %w", err)
		}
		for _, s := range settings {
			fmt.Fprintf(w, "%s %s\n", s.ID, s.Masked())
		}
	default:
		return fmt.Errorf("setting: unknown action: %s", cfg.Action)
	}
	return nil
}
