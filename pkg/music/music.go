package music

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrKeyNotFound is returned by generators when the provider rejects the
// selected API key as an unknown entity.
var ErrKeyNotFound = errors.New("music: requested entity was not found")

// Concept is the structured song description returned by the text model.
type Concept struct {
	Title        string   `json:"title" yaml:"title"`
	Style        string   `json:"style" yaml:"style"`
	BPM          int      `json:"bpm" yaml:"bpm"`
	Key          string   `json:"key" yaml:"key"`
	Lyrics       []string `json:"lyrics" yaml:"lyrics"`
	Chords       []string `json:"chords" yaml:"chords"`
	Description  string   `json:"description" yaml:"description"`
	MoodAnalysis Mood     `json:"moodAnalysis" yaml:"mood"`
}

// Validate checks the minimum a concept needs to be displayed.
func (c *Concept) Validate() error {
	if c == nil {
		return errors.New("music: nil concept")
	}
	if strings.TrimSpace(c.Title) == "" {
		return errors.New("music: concept without title")
	}
	return nil
}

// Mood holds five scores in the 0..100 range.
type Mood struct {
	Energy           float64 `json:"energy" yaml:"energy"`
	Valence          float64 `json:"valence" yaml:"valence"`
	Danceability     float64 `json:"danceability" yaml:"danceability"`
	Acousticness     float64 `json:"acousticness" yaml:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness" yaml:"instrumentalness"`
}

const MaxScore = 100

// Clamp returns a copy of the mood with every score bounded to 0..100.
func (m Mood) Clamp() Mood {
	return Mood{
		Energy:           clamp(m.Energy),
		Valence:          clamp(m.Valence),
		Danceability:     clamp(m.Danceability),
		Acousticness:     clamp(m.Acousticness),
		Instrumentalness: clamp(m.Instrumentalness),
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > MaxScore:
		return MaxScore
	default:
		return v
	}
}

type Score struct {
	Subject string
	Value   float64
}

// Scores returns the labelled scores in display order.
func (m Mood) Scores() []Score {
	return []Score{
		{"Energy", m.Energy},
		{"Valence", m.Valence},
		{"Danceability", m.Danceability},
		{"Acousticness", m.Acousticness},
		{"Instrumental", m.Instrumentalness},
	}
}

// Status of a generation.
type Status string

const (
	Idle            Status = "IDLE"
	GeneratingText  Status = "GENERATING_TEXT"
	GeneratingImage Status = "GENERATING_IMAGE"
	Completed       Status = "COMPLETED"
	Failed          Status = "ERROR"
)

func (s Status) Loading() bool {
	return s == GeneratingText || s == GeneratingImage
}

// Image is a generated image held in memory.
type Image struct {
	MIME string
	Data []byte
}

// DataURL renders the image as a data URL.
func (i *Image) DataURL() string {
	if i == nil || len(i.Data) == 0 {
		return ""
	}
	mime := i.MIME
	if mime == "" {
		mime = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(i.Data))
}

// Asset is the state of the latest generation.
type Asset struct {
	Concept     *Concept `json:"concept"`
	CoverArtURL *string  `json:"coverArtUrl"`
	Status      Status   `json:"status"`
	Error       *string  `json:"error"`
}

// Track is a playlist entry.
type Track struct {
	ID        string
	CreatedAt time.Time

	Genre string
	Mood  string
	Topic string

	Concept Concept
	Cover   *Image
}

// Generator is implemented by the generative providers.
type Generator interface {
	Concept(ctx context.Context, genre, mood, topic string) (*Concept, error)
	Lyrics(ctx context.Context, concept *Concept) ([]string, error)
	Cover(ctx context.Context, title, style, description string) (*Image, error)
}
