package studio

import (
	"context"
	"fmt"
	"log"

	"github.com/igolaizola/musaix/pkg/filestore"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/storage"
)

type archive struct {
	db       *storage.Store
	fs       *filestore.Store
	provider string
}

// NewArchive returns an archive that stores tracks in the database and
// cover art in the file store. The file store is optional.
func NewArchive(db *storage.Store, fs *filestore.Store, provider string) Archive {
	return &archive{db: db, fs: fs, provider: provider}
}

func (a *archive) SaveTrack(ctx context.Context, t *music.Track) error {
	if err := a.db.SetTrack(ctx, storage.NewTrack(t, a.provider)); err != nil {
		return fmt.Errorf("studio: %w", err)
	}
	return nil
}

func (a *archive) SaveCover(ctx context.Context, id string, img *music.Image) error {
	if a.fs == nil {
		return nil
	}
	if err := a.fs.SetCover(ctx, id, img); err != nil {
		return fmt.Errorf("studio: %w", err)
	}
	return nil
}

// LoadTracks returns the latest tracks, oldest first.
func (a *archive) LoadTracks(ctx context.Context, limit int) ([]*music.Track, error) {
	vs, err := a.db.ListTracks(ctx, 1, limit, "created_at desc, id desc")
	if err != nil {
		return nil, err
	}
	tracks := make([]*music.Track, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		v := vs[i]
		t := v.Music()
		if v.HasCover && a.fs != nil {
			img, err := a.fs.GetCover(ctx, v.ID)
			if err != nil {
				log.Printf("studio: couldn't load cover %s: %v\n", v.ID, err)
			} else {
				t.Cover = img
			}
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}
