package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/igolaizola/musaix/pkg/gemini"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel      = "gpt-4o"
	DefaultImageModel = openai.CreateImageModelDallE3
)

type Config struct {
	Debug      bool
	KeyStore   KeyStore
	Model      string
	ImageModel string
	BaseURL    string
	Client     *http.Client
}

type Client struct {
	client     *openai.Client
	debug      bool
	model      string
	imageModel string
}

// KeyStore returns the API key to use on each request.
type KeyStore interface {
	GetKey(context.Context) (string, error)
}

// keyTransport sets the bearer token of every request from the key store,
// so a newly selected key is used without rebuilding the client.
type keyTransport struct {
	keys KeyStore
	next http.RoundTripper
}

func (t *keyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	key, err := t.keys.GetKey(req.Context())
	if err != nil {
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+key)
	return t.next.RoundTrip(req)
}

func New(cfg *Config) *Client {
	c := openai.DefaultConfig("")
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	client := &http.Client{}
	if cfg.Client != nil {
		cp := *cfg.Client
		client = &cp
	}
	next := client.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	if cfg.KeyStore != nil {
		client.Transport = &keyTransport{keys: cfg.KeyStore, next: next}
	}
	c.HTTPClient = client
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = DefaultImageModel
	}
	return &Client{
		client:     openai.NewClientWithConfig(c),
		debug:      cfg.Debug,
		model:      model,
		imageModel: imageModel,
	}
}

func (c *Client) TextModel() string {
	return c.model
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

func (c *Client) chat(ctx context.Context, msg string, format *openai.ChatCompletionResponseFormat) (string, error) {
	c.log("openai: chat %s", msg)
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: msg,
			},
		},
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("openai: couldn't create chat completion: %w", keyError(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	c.log("openai: response %s", text)
	return text, nil
}

// keyError marks authentication failures so a new key can be selected.
func keyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", music.ErrKeyNotFound, err)
	}
	return err
}

var jsonFormat = &openai.ChatCompletionResponseFormat{
	Type: openai.ChatCompletionResponseFormatTypeJSONObject,
}

const conceptShape = `
Use exactly these keys: title (string), style (string), bpm (integer), key (string),
lyrics (array of strings), chords (array of strings), description (string),
moodAnalysis (object with numeric energy, valence, danceability, acousticness, instrumentalness).`

// Concept generates a structured song concept.
func (c *Client) Concept(ctx context.Context, genre, mood, topic string) (*music.Concept, error) {
	text, err := c.chat(ctx, gemini.ConceptPrompt(genre, mood, topic)+conceptShape, jsonFormat)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, errors.New("openai: no response from openai")
	}
	var concept music.Concept
	if err := json.Unmarshal([]byte(text), &concept); err != nil {
		return nil, fmt.Errorf("openai: couldn't unmarshal concept (%s): %w", text, err)
	}
	concept.MoodAnalysis = concept.MoodAnalysis.Clamp()
	return &concept, nil
}

// Lyrics generates the complete lyrics of a concept.
func (c *Client) Lyrics(ctx context.Context, concept *music.Concept) ([]string, error) {
	text, err := c.chat(ctx, gemini.LyricsPrompt(concept), jsonFormat)
	if err != nil {
		return nil, err
	}
	var out struct {
		Lyrics []string `json:"lyrics"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("openai: couldn't unmarshal lyrics (%s): %w", text, err)
	}
	return out.Lyrics, nil
}

// Cover generates a square cover art image.
func (c *Client) Cover(ctx context.Context, title, style, description string) (*music.Image, error) {
	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         gemini.CoverPrompt(title, style, description),
		Model:          c.imageModel,
		Size:           openai.CreateImageSize1024x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't create image: %w", keyError(err))
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("openai: failed to generate image")
	}
	b, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't decode image: %w", err)
	}
	return &music.Image{MIME: "image/png", Data: b}, nil
}
