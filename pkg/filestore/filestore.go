package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/igolaizola/musaix/pkg/filestore/local"
	"github.com/igolaizola/musaix/pkg/filestore/s3"
	"github.com/igolaizola/musaix/pkg/filestore/tgstore"
	"github.com/igolaizola/musaix/pkg/image"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/storage"
)

type fs interface {
	Upload(ctx context.Context, path, name string) error
	Download(ctx context.Context, path, name string) error
}

// Store keeps cover art files in one of the supported backends.
type Store struct {
	fs fs
}

func (s *Store) SetJPG(ctx context.Context, path, id string) error {
	return s.fs.Upload(ctx, path, JPG(id))
}

func (s *Store) GetJPG(ctx context.Context, path, id string) error {
	return s.fs.Download(ctx, path, JPG(id))
}

// SetCover stores the cover art of a track as a JPG file.
func (s *Store) SetCover(ctx context.Context, id string, img *music.Image) error {
	if img == nil || len(img.Data) == 0 {
		return fmt.Errorf("filestore: empty cover for %s", id)
	}
	data, err := image.ToJPG(img.Data, img.MIME)
	if err != nil {
		return fmt.Errorf("filestore: %w", err)
	}
	dir, err := os.MkdirTemp("", "musaix-cover-*")
	if err != nil {
		return fmt.Errorf("filestore: couldn't create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, JPG(id))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("filestore: couldn't write %s: %w", path, err)
	}
	return s.SetJPG(ctx, path, id)
}

// GetCover loads the cover art of a track.
func (s *Store) GetCover(ctx context.Context, id string) (*music.Image, error) {
	dir, err := os.MkdirTemp("", "musaix-cover-*")
	if err != nil {
		return nil, fmt.Errorf("filestore: couldn't create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, JPG(id))
	if err := s.GetJPG(ctx, path, id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: couldn't read %s: %w", path, err)
	}
	return &music.Image{MIME: "image/jpeg", Data: data}, nil
}

func New(typ, conn, proxy string, debug bool, store *storage.Store) (*Store, error) {
	var fs fs
	switch typ {
	case "telegram":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid telegram connection string %q", conn)
		}
		token := split[0]
		chat, err := strconv.ParseInt(split[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("filestore: invalid telegram chat id %q: %w", split[1], err)
		}
		if store == nil {
			return nil, fmt.Errorf("filestore: telegram requires a database")
		}
		candidate, err := tgstore.New(token, chat, proxy, debug, store)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "s3":
		split := strings.Split(conn, "@")
		if len(split) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 connection string %q", conn)
		}
		auth := strings.Split(split[0], ":")
		if len(auth) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 auth string %q", conn)
		}
		key := auth[0]
		secret := auth[1]
		loc := strings.Split(split[1], ".")
		if len(loc) != 2 {
			return nil, fmt.Errorf("filestore: invalid s3 location string %q", conn)
		}
		bucket := loc[0]
		region := loc[1]
		candidate, err := s3.New(key, secret, region, bucket, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	case "local":
		candidate, err := local.New(conn, debug)
		if err != nil {
			return nil, fmt.Errorf("filestore: %w", err)
		}
		fs = candidate
	default:
		return nil, fmt.Errorf("filestore: unknown file storage type %q", typ)
	}
	return &Store{fs: fs}, nil
}

func JPG(id string) string {
	return id + ".jpg"
}
