package storage

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/igolaizola/musaix/pkg/music"
	"gorm.io/gorm"
)

// Lines is a list of strings stored as a JSON column.
type Lines []string

func (l Lines) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *Lines) Scan(src interface{}) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return fmt.Errorf("storage: unsupported lines type %T", src)
	}
	if len(b) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(b, l)
}

type Track struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Genre string `gorm:"not null;default:''"`
	Mood  string `gorm:"not null;default:''"`
	Topic string `gorm:"not null;default:''"`

	Title       string `gorm:"index;not null;default:''"`
	Style       string `gorm:"not null;default:''"`
	BPM         int    `gorm:"not null;default:0"`
	Key         string `gorm:"not null;default:''"`
	Lyrics      Lines  `gorm:"type:text"`
	Chords      Lines  `gorm:"type:text"`
	Description string `gorm:"not null;default:''"`

	Energy           float64 `gorm:"not null;default:0"`
	Valence          float64 `gorm:"not null;default:0"`
	Danceability     float64 `gorm:"not null;default:0"`
	Acousticness     float64 `gorm:"not null;default:0"`
	Instrumentalness float64 `gorm:"not null;default:0"`

	Provider  string `gorm:"not null;default:''"`
	CoverMIME string `gorm:"not null;default:''"`
	HasCover  bool   `gorm:"not null;default:false"`
}

// NewTrack converts a playlist track into its stored form.
func NewTrack(t *music.Track, provider string) *Track {
	c := t.Concept
	v := &Track{
		ID:               t.ID,
		CreatedAt:        t.CreatedAt,
		Genre:            t.Genre,
		Mood:             t.Mood,
		Topic:            t.Topic,
		Title:            c.Title,
		Style:            c.Style,
		BPM:              c.BPM,
		Key:              c.Key,
		Lyrics:           Lines(c.Lyrics),
		Chords:           Lines(c.Chords),
		Description:      c.Description,
		Energy:           c.MoodAnalysis.Energy,
		Valence:          c.MoodAnalysis.Valence,
		Danceability:     c.MoodAnalysis.Danceability,
		Acousticness:     c.MoodAnalysis.Acousticness,
		Instrumentalness: c.MoodAnalysis.Instrumentalness,
		Provider:         provider,
	}
	if t.Cover != nil && len(t.Cover.Data) > 0 {
		v.HasCover = true
		v.CoverMIME = t.Cover.MIME
	}
	return v
}

// Music returns the playlist track without cover data.
func (v *Track) Music() *music.Track {
	return &music.Track{
		ID:        v.ID,
		CreatedAt: v.CreatedAt,
		Genre:     v.Genre,
		Mood:      v.Mood,
		Topic:     v.Topic,
		Concept: music.Concept{
			Title:       v.Title,
			Style:       v.Style,
			BPM:         v.BPM,
			Key:         v.Key,
			Lyrics:      []string(v.Lyrics),
			Chords:      []string(v.Chords),
			Description: v.Description,
			MoodAnalysis: music.Mood{
				Energy:           v.Energy,
				Valence:          v.Valence,
				Danceability:     v.Danceability,
				Acousticness:     v.Acousticness,
				Instrumentalness: v.Instrumentalness,
			},
		},
	}
}

func (s *Store) GetTrack(ctx context.Context, id string) (*Track, error) {
	var v Track
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get track %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) SetTrack(ctx context.Context, v *Track) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set track %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteTrack(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Track{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete track %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListTracks(ctx context.Context, page, size int, orderBy string, filter ...Filter) ([]*Track, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Track{}

	q := s.db.WithContext(ctx).Offset(offset).Limit(size)
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	if orderBy != "" {
		q = q.Order(orderBy)
	}
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list tracks: %w", err)
	}
	return vs, nil
}

func (s *Store) CountTracks(ctx context.Context, filter ...Filter) (int64, error) {
	q := s.db.WithContext(ctx).Model(&Track{})
	for _, f := range filter {
		q = q.Where(f.Query, f.Args...)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("storage: failed to count tracks: %w", err)
	}
	return n, nil
}
