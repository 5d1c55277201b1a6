package gemini

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/ratelimit"
	"google.golang.org/genai"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/"
	DefaultTextModel  = "gemini-2.5-flash"
	DefaultImageModel = "gemini-3-pro-image-preview"

	apiVersion = "v1beta"
)

type Client struct {
	client     *http.Client
	debug      bool
	ratelimit  ratelimit.Lock
	keyStore   KeyStore
	baseURL    string
	textModel  string
	imageModel string
}

type Config struct {
	Wait       time.Duration
	Debug      bool
	Client     *http.Client
	KeyStore   KeyStore
	BaseURL    string
	TextModel  string
	ImageModel string
}

// KeyStore returns the API key to use on each request.
type KeyStore interface {
	GetKey(context.Context) (string, error)
}

type keyStore string

func (k keyStore) GetKey(ctx context.Context) (string, error) {
	if k == "" {
		return "", errors.New("gemini: api key is empty")
	}
	return string(k), nil
}

// NewKeyStore returns a key store with a fixed key.
func NewKeyStore(key string) KeyStore {
	return keyStore(key)
}

func New(cfg *Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 2 * time.Minute,
		}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	textModel := cfg.TextModel
	if textModel == "" {
		textModel = DefaultTextModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	keys := cfg.KeyStore
	if keys == nil {
		keys = NewKeyStore("")
	}
	return &Client{
		client:     client,
		debug:      cfg.Debug,
		ratelimit:  ratelimit.New(cfg.Wait),
		keyStore:   keys,
		baseURL:    baseURL,
		textModel:  textModel,
		imageModel: imageModel,
	}
}

func (c *Client) TextModel() string {
	return c.textModel
}

func (c *Client) ImageModel() string {
	return c.imageModel
}

func (c *Client) log(format string, args ...interface{}) {
	if c.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

var backoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// generate calls generateContent on the model, retrying transient failures.
func (c *Client) generate(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	maxAttempts := 3
	attempts := 0
	for {
		resp, err := c.generateAttempt(ctx, model, prompt, cfg)
		if err == nil {
			return resp, nil
		}
		// Increase attempts and check if we should stop
		attempts++
		if attempts >= maxAttempts {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}

		// If the error is temporary retry
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			log.Println("gemini: retrying...", err)
			continue
		}

		// Check status code
		var errStatus errStatusCode
		if !errors.As(err, &errStatus) {
			return nil, err
		}
		switch int(errStatus) {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout, http.StatusTooManyRequests:
		default:
			return nil, err
		}

		// Wait before retrying
		idx := attempts - 1
		if idx >= len(backoff) {
			idx = len(backoff) - 1
		}
		wait := backoff[idx]
		log.Printf("gemini: %v (retrying in %s)\n", err, wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) generateAttempt(ctx context.Context, model, prompt string, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	c.log("gemini: generate %s %s", model, truncate(prompt, 500))

	key, err := c.keyStore.GetKey(ctx)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.client,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: couldn't create client: %w", err)
	}

	unlock := c.ratelimit.Lock(ctx)
	defer unlock()

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		return nil, apiError(model, err)
	}
	c.log("gemini: response %s %s", model, truncate(text(resp), 500))
	return resp, nil
}

type errStatusCode int

func (e errStatusCode) Error() string {
	return fmt.Sprintf("%d", e)
}

const (
	notFoundMessage = "Requested entity was not found"
	maxMessage      = 200
)

// apiError converts the errors returned by the API into status errors,
// keeping the message of the API so it can be shown to the user.
func apiError(model string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	default:
		return fmt.Errorf("gemini: couldn't generate with %s: %w", model, err)
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.Code)
	}
	msg = truncate(msg, maxMessage)
	if strings.Contains(msg, notFoundMessage) {
		return fmt.Errorf("gemini: %s: %w (%w)", msg, music.ErrKeyNotFound, errStatusCode(apiErr.Code))
	}
	return fmt.Errorf("gemini: %s returned (%s): %w", model, msg, errStatusCode(apiErr.Code))
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
