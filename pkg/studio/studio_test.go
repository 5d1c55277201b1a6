package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/musaix/pkg/filestore"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/player"
	"github.com/igolaizola/musaix/pkg/storage"
)

type fakeGenerator struct {
	mu         sync.Mutex
	conceptErr error
	coverErr   error
	lyricsErr  error
	calls      []string
	// onCover is called before the cover is returned
	onCover func()
	block   chan struct{}
}

func (g *fakeGenerator) record(call string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)
}

func (g *fakeGenerator) Concept(ctx context.Context, genre, mood, topic string) (*music.Concept, error) {
	g.record("concept")
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.conceptErr != nil {
		return nil, g.conceptErr
	}
	return &music.Concept{
		Title:  fmt.Sprintf("%s %s", mood, topic),
		Style:  genre,
		BPM:    90,
		Lyrics: []string{"short"},
	}, nil
}

func (g *fakeGenerator) Lyrics(ctx context.Context, concept *music.Concept) ([]string, error) {
	g.record("lyrics")
	if g.lyricsErr != nil {
		return nil, g.lyricsErr
	}
	return []string{"[Verse 1]", "full", "[Chorus]"}, nil
}

func (g *fakeGenerator) Cover(ctx context.Context, title, style, description string) (*music.Image, error) {
	g.record("cover")
	if g.onCover != nil {
		g.onCover()
	}
	if g.coverErr != nil {
		return nil, g.coverErr
	}
	return &music.Image{MIME: "image/png", Data: coverPNG()}, nil
}

func coverPNG() []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4)))
	return buf.Bytes()
}

func newTestStudio(t *testing.T, g music.Generator, cfg *Config) *Studio {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Generator = g
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestGenerate(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestStudio(t, g, nil)
	if st := s.State(); st.Asset.Status != music.Idle || st.Form != DefaultForm() {
		t.Fatalf("initial state = %+v", st)
	}

	var statuses []music.Status
	g.onCover = func() {
		st := s.State()
		statuses = append(statuses, st.Asset.Status)
		if st.Asset.Concept == nil || st.Asset.Concept.Title != "Chill Late night coding" {
			t.Errorf("concept during cover = %+v", st.Asset.Concept)
		}
	}

	track, err := s.Generate(context.Background(), DefaultForm())
	if err != nil {
		t.Fatalf("Generate() err = %v; want nil", err)
	}
	if track.ID == "" || track.Genre != DefaultGenre {
		t.Fatalf("track = %+v", track)
	}
	st := s.State()
	statuses = append(statuses, st.Asset.Status)
	want := []music.Status{music.GeneratingImage, music.Completed}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Fatalf("statuses = %v; want %v", statuses, want)
	}
	if st.Player.Len != 1 || st.Player.Index != 0 || !st.Player.Playing {
		t.Fatalf("player = %+v", st.Player)
	}
	if st.Asset.CoverArtURL == nil || !strings.HasPrefix(*st.Asset.CoverArtURL, "data:image/png;base64,") {
		t.Fatalf("cover = %v", st.Asset.CoverArtURL)
	}
	if st.Asset.Error != nil {
		t.Fatalf("error = %v; want nil", *st.Asset.Error)
	}
	if s.Busy() {
		t.Fatal("Busy() = true after generation")
	}
}

func TestGenerateConceptError(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestStudio(t, g, nil)
	if _, err := s.Generate(context.Background(), DefaultForm()); err != nil {
		t.Fatal(err)
	}

	g.conceptErr = errors.New("gemini: quota exceeded")
	if _, err := s.Generate(context.Background(), DefaultForm()); err == nil {
		t.Fatal("Generate() err = nil; want error")
	}
	st := s.State()
	if st.Asset.Status != music.Failed {
		t.Fatalf("status = %s; want ERROR", st.Asset.Status)
	}
	if st.Asset.Error == nil || *st.Asset.Error != "gemini: quota exceeded" {
		t.Fatalf("error = %v", st.Asset.Error)
	}
	if st.Player.Len != 1 {
		t.Fatalf("playlist len = %d; want 1", st.Player.Len)
	}
	// Previous result is kept
	if st.Asset.Concept == nil || st.Asset.CoverArtURL == nil {
		t.Fatalf("asset = %+v; want previous concept and cover", st.Asset)
	}
}

func TestGenerateCoverError(t *testing.T) {
	g := &fakeGenerator{coverErr: errors.New("gemini: failed to generate image")}
	s := newTestStudio(t, g, nil)
	if _, err := s.Generate(context.Background(), DefaultForm()); err == nil {
		t.Fatal("Generate() err = nil; want error")
	}
	st := s.State()
	if st.Asset.Status != music.Failed || st.Player.Len != 0 {
		t.Fatalf("state = %+v", st)
	}
	if st.Asset.Concept == nil {
		t.Fatal("concept = nil; want the generated concept")
	}
}

func TestKeyRefresh(t *testing.T) {
	tests := []struct {
		name      string
		selectErr error
		want      string
	}{
		{"refreshed", nil, KeyRefreshed},
		{"selection failed", errors.New("cancelled"), "gemini: Requested entity was not found.: music: requested entity was not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called int
			g := &fakeGenerator{
				conceptErr: fmt.Errorf("gemini: Requested entity was not found.: %w", music.ErrKeyNotFound),
			}
			s := newTestStudio(t, g, &Config{
				SelectKey: func(ctx context.Context) error {
					called++
					return tt.selectErr
				},
			})
			_, _ = s.Generate(context.Background(), DefaultForm())
			st := s.State()
			if called != 1 {
				t.Fatalf("select key called %d times; want 1", called)
			}
			if st.Asset.Error == nil || *st.Asset.Error != tt.want {
				t.Fatalf("error = %v; want %q", st.Asset.Error, tt.want)
			}
		})
	}
}

func TestBusy(t *testing.T) {
	g := &fakeGenerator{block: make(chan struct{})}
	s := newTestStudio(t, g, nil)
	if err := s.Start(DefaultForm()); err != nil {
		t.Fatalf("Start() err = %v; want nil", err)
	}
	if !s.Busy() || !s.State().Asset.Status.Loading() {
		t.Fatal("studio isn't busy after Start")
	}
	if err := s.Start(DefaultForm()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Start() err = %v; want ErrBusy", err)
	}
	if _, err := s.Generate(context.Background(), DefaultForm()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Generate() err = %v; want ErrBusy", err)
	}
	close(g.block)

	deadline := time.Now().Add(5 * time.Second)
	for s.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("generation didn't finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if st := s.State(); st.Asset.Status != music.Completed || st.Player.Len != 1 {
		t.Fatalf("state = %+v", st)
	}
}

func TestTimeout(t *testing.T) {
	g := &fakeGenerator{block: make(chan struct{})}
	s := newTestStudio(t, g, &Config{Timeout: 10 * time.Millisecond})
	_, err := s.Generate(context.Background(), DefaultForm())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Generate() err = %v; want deadline exceeded", err)
	}
	if st := s.State(); st.Asset.Status != music.Failed {
		t.Fatalf("status = %s; want ERROR", st.Asset.Status)
	}
}

func TestFormGenre(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestStudio(t, g, nil)
	track, err := s.Generate(context.Background(), Form{Genre: "lofi hip hop", Mood: " Dark ", Topic: "Rain"})
	if err != nil {
		t.Fatal(err)
	}
	if track.Genre != "Lo-Fi Hip Hop" || track.Mood != "Dark" {
		t.Fatalf("track = %s / %s", track.Genre, track.Mood)
	}
}

func TestFullLyrics(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestStudio(t, g, nil)

	// No current track
	if err := s.FullLyrics(context.Background()); err != nil {
		t.Fatalf("FullLyrics() err = %v; want nil", err)
	}
	if len(g.calls) != 0 {
		t.Fatalf("calls = %v; want none", g.calls)
	}

	if _, err := s.Generate(context.Background(), DefaultForm()); err != nil {
		t.Fatal(err)
	}
	if err := s.FullLyrics(context.Background()); err != nil {
		t.Fatalf("FullLyrics() err = %v; want nil", err)
	}
	track, _ := s.Player().Current()
	if len(track.Concept.Lyrics) != 3 || track.Concept.Lyrics[2] != "[Chorus]" {
		t.Fatalf("lyrics = %v", track.Concept.Lyrics)
	}
	if s.Writing() {
		t.Fatal("Writing() = true after lyrics")
	}

	g.lyricsErr = errors.New("boom")
	if err := s.FullLyrics(context.Background()); err == nil {
		t.Fatal("FullLyrics() err = nil; want error")
	}
	track, _ = s.Player().Current()
	if len(track.Concept.Lyrics) != 3 {
		t.Fatalf("lyrics changed after failure: %v", track.Concept.Lyrics)
	}
}

func TestCoverFilename(t *testing.T) {
	tests := []struct {
		title string
		mime  string
		want  string
	}{
		{"Midnight Compile", "image/png", "midnight-compile.png"},
		{"Neon   Rain\tFalls", "", "neon-rain-falls.png"},
		{"Midnight Compile", "image/jpeg", "midnight-compile.jpg"},
		{"", "", DefaultCoverFilename},
		{"", "image/jpeg", "musaix-art.jpg"},
	}
	for _, tt := range tests {
		track := &music.Track{Concept: music.Concept{Title: tt.title}}
		if tt.mime != "" {
			track.Cover = &music.Image{MIME: tt.mime, Data: []byte{1}}
		}
		got := CoverFilename(track)
		if got != tt.want {
			t.Errorf("CoverFilename(%q) = %s; want %s", tt.title, got, tt.want)
		}
	}
	if got := CoverFilename(nil); got != DefaultCoverFilename {
		t.Errorf("CoverFilename(nil) = %s", got)
	}
}

func TestMessages(t *testing.T) {
	msg := ShareMessage(&music.Track{Concept: music.Concept{Title: "Neon Rain"}})
	if msg != `Shared "Neon Rain" successfully!` {
		t.Fatalf("ShareMessage() = %s", msg)
	}
	if ShareMessage(nil) != "" {
		t.Fatal("ShareMessage(nil) not empty")
	}
	note := ProductionNote("Chill")
	want := "This progression works best with a syncopated bassline. Consider adding reverb to the snare for that chill atmosphere."
	if note != want {
		t.Fatalf("ProductionNote() = %s", note)
	}
}

type fakeObserver struct {
	mu       sync.Mutex
	stages   []string
	lyrics   int
	playlist int
}

func (o *fakeObserver) Generation(stage string, err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *fakeObserver) Lyrics(err error, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lyrics++
}

func (o *fakeObserver) Playlist(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.playlist = n
}

func TestArchive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := storage.New("sqlite", filepath.Join(dir, "musaix.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	fs, err := filestore.New("local", filepath.Join(dir, "covers"), "", false, db)
	if err != nil {
		t.Fatal(err)
	}

	g := &fakeGenerator{}
	obs := &fakeObserver{}
	s := newTestStudio(t, g, &Config{
		Archive:  NewArchive(db, fs, "fake"),
		Observer: obs,
	})
	first, err := s.Generate(ctx, Form{Genre: "Modern Jazz", Mood: "Smooth", Topic: "Rain"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Generate(ctx, DefaultForm()); err != nil {
		t.Fatal(err)
	}
	if err := s.FullLyrics(ctx); err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(obs.stages) != "[concept cover concept cover]" || obs.lyrics != 1 || obs.playlist != 2 {
		t.Fatalf("observer = %+v", obs)
	}

	stored, err := db.GetTrack(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Title != "Smooth Rain" || !stored.HasCover || stored.Provider != "fake" {
		t.Fatalf("stored = %+v", stored)
	}

	restored := newTestStudio(t, g, &Config{
		Archive: NewArchive(db, fs, "fake"),
		Player:  player.New(nil),
	})
	if err := restored.Restore(ctx, 10); err != nil {
		t.Fatal(err)
	}
	tracks := restored.Player().Tracks()
	if len(tracks) != 2 || tracks[0].ID != first.ID {
		t.Fatalf("restored = %v", tracks)
	}
	if tracks[1].Concept.Lyrics[0] != "[Verse 1]" {
		t.Fatalf("restored lyrics = %v", tracks[1].Concept.Lyrics)
	}
	if tracks[0].Cover == nil {
		t.Fatal("restored cover = nil")
	}
	if st := restored.State(); st.Player.Playing || st.Player.Index != 0 {
		t.Fatalf("restored player = %+v", st.Player)
	}
}

func TestStartFullLyrics(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestStudio(t, g, nil)
	if err := s.StartFullLyrics(); err != nil {
		t.Fatalf("StartFullLyrics() err = %v; want nil", err)
	}
	if _, err := s.Generate(context.Background(), DefaultForm()); err != nil {
		t.Fatal(err)
	}
	if err := s.StartFullLyrics(); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Writing() {
		if time.Now().After(deadline) {
			t.Fatal("lyrics didn't finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	track, _ := s.Player().Current()
	if len(track.Concept.Lyrics) != 3 {
		t.Fatalf("lyrics = %v", track.Concept.Lyrics)
	}
}
