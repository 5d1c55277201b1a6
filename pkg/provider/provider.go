package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/igolaizola/musaix/pkg/gemini"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/openai"
	"github.com/igolaizola/musaix/pkg/storage"
)

const (
	Gemini = "gemini"
	OpenAI = "openai"
)

type Config struct {
	Debug    bool
	Provider string
	Key      string
	BaseURL  string
	Proxy    string
	Wait     time.Duration

	TextModel  string
	ImageModel string
}

// Provider is a generator with the names of the models it uses.
type Provider struct {
	music.Generator
	Name       string
	TextModel  string
	ImageModel string
	Keyring    *Keyring
}

// SettingID returns the setting that stores the key of a provider.
func SettingID(provider string) (string, error) {
	switch provider {
	case Gemini, "":
		return storage.GeminiKey, nil
	case OpenAI:
		return storage.OpenAIKey, nil
	default:
		return "", fmt.Errorf("provider: unknown provider %q", provider)
	}
}

// New creates the generator of the configured provider. The database is
// optional and is used to look up keys selected by the user.
func New(ctx context.Context, cfg *Config, db *storage.Store) (*Provider, error) {
	id, err := SettingID(cfg.Provider)
	if err != nil {
		return nil, err
	}
	keys := NewKeyring(id, cfg.Key, db)

	client := &http.Client{
		Timeout: 2 * time.Minute,
	}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("provider: invalid proxy %s: %w", cfg.Proxy, err)
		}
		client.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}

	switch cfg.Provider {
	case OpenAI:
		c := openai.New(&openai.Config{
			Debug:      cfg.Debug,
			KeyStore:   keys,
			Model:      cfg.TextModel,
			ImageModel: cfg.ImageModel,
			BaseURL:    cfg.BaseURL,
			Client:     client,
		})
		return &Provider{
			Generator:  c,
			Name:       OpenAI,
			TextModel:  c.TextModel(),
			ImageModel: c.ImageModel(),
			Keyring:    keys,
		}, nil
	default:
		c := gemini.New(&gemini.Config{
			Wait:       cfg.Wait,
			Debug:      cfg.Debug,
			Client:     client,
			KeyStore:   keys,
			BaseURL:    cfg.BaseURL,
			TextModel:  cfg.TextModel,
			ImageModel: cfg.ImageModel,
		})
		return &Provider{
			Generator:  c,
			Name:       Gemini,
			TextModel:  c.TextModel(),
			ImageModel: c.ImageModel(),
			Keyring:    keys,
		}, nil
	}
}
