package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Setting ids used by the application.
const (
	GeminiKey = "gemini-key"
	OpenAIKey = "openai-key"
)

// SettingIDs lists the setting ids that can be managed from the CLI.
var SettingIDs = []string{GeminiKey, OpenAIKey}

type Setting struct {
	ID        string `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Value     string
}

// Masked returns the value with everything but the last four characters hidden.
func (v *Setting) Masked() string {
	if len(v.Value) <= 4 {
		return strings.Repeat("*", len(v.Value))
	}
	return strings.Repeat("*", len(v.Value)-4) + v.Value[len(v.Value)-4:]
}

func (s *Store) GetSetting(ctx context.Context, id string) (*Setting, error) {
	var v Setting
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: failed to get setting %s: %w", id, err)
	}
	return &v, nil
}

// GetKey implements a key store backed by a setting.
func (s *Store) GetKey(ctx context.Context, id string) (string, error) {
	v, err := s.GetSetting(ctx, id)
	if err != nil {
		return "", err
	}
	if v.Value == "" {
		return "", ErrNotFound
	}
	return v.Value, nil
}

func (s *Store) SetSetting(ctx context.Context, v *Setting) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return fmt.Errorf("storage: failed to set setting %s: %w", v.ID, err)
	}
	return nil
}

func (s *Store) DeleteSetting(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&Setting{ID: id}, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("storage: failed to delete setting %s: %w", id, err)
	}
	return nil
}

func (s *Store) ListSettings(ctx context.Context, page, size int) ([]*Setting, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * size
	vs := []*Setting{}

	q := s.db.WithContext(ctx).Offset(offset).Limit(size).Order("id asc")
	if err := q.Find(&vs).Error; err != nil {
		return nil, fmt.Errorf("storage: failed to list settings: %w", err)
	}
	return vs, nil
}
