package compose

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/igolaizola/musaix/pkg/gemini"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/provider"
	"github.com/igolaizola/musaix/pkg/storage"
	"github.com/igolaizola/musaix/pkg/studio"
)

func TestReadPrompts(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"prompts.csv", "genre,mood,topic\nModern Jazz,Warm,Rain\nIndie Pop,Happy,Summer\n", 2, false},
		{"prompts.json", `[{"genre":"Dark Techno","mood":"Dark","topic":"Factory"}]`, 1, false},
		{"empty.json", `[]`, 0, true},
		{"prompts.txt", "Modern Jazz", 0, true},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name)
		if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := readPrompts(path)
		if (err != nil) != tt.wantErr {
			t.Fatalf("readPrompts(%s) err = %v; want error %v", tt.name, err, tt.wantErr)
		}
		if len(got) != tt.want {
			t.Fatalf("readPrompts(%s) = %d prompts; want %d", tt.name, len(got), tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	got := defaults(studio.Form{Genre: "Modern Jazz", Mood: " "})
	want := studio.Form{Genre: "Modern Jazz", Mood: studio.DefaultMood, Topic: studio.DefaultTopic}
	if got != want {
		t.Fatalf("defaults() = %+v; want %+v", got, want)
	}
}

func coverPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// geminiServer replies to text requests with a concept and to image
// requests with a cover.
func geminiServer(t *testing.T) *httptest.Server {
	t.Helper()
	cover := base64.StdEncoding.EncodeToString(coverPNG(t))
	concept, _ := json.Marshal(music.Concept{
		Title:  "Blue Hour",
		Style:  "Modern Jazz",
		BPM:    96,
		Key:    "D minor",
		Lyrics: []string{"[Verse 1]", "rain"},
		Chords: []string{"Dm7", "G7"},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, gemini.DefaultImageModel) {
			fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":%q}}]}}]}`, cover)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"parts": []any{map[string]any{"text": string(concept)}},
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	srv := geminiServer(t)
	dir := t.TempDir()
	db := filepath.Join(dir, "musaix.db")
	out := filepath.Join(dir, "out")

	store, err := storage.New("sqlite", db, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := store.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	err = Run(ctx, &Config{
		DBType: "sqlite",
		DBConn: db,
		FSType: "local",
		FSConn: filepath.Join(dir, "files"),
		Genre:  "modern jaz",
		Output: out,
		Provider: provider.Config{
			Provider: provider.Gemini,
			Key:      "test-key",
			BaseURL:  srv.URL,
		},
	})
	if err != nil {
		t.Fatalf("Run() err = %v; want nil", err)
	}

	if _, err := os.Stat(filepath.Join(out, "blue-hour.png")); err != nil {
		t.Fatalf("cover not written: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(out, "blue-hour.json"))
	if err != nil {
		t.Fatal(err)
	}
	var got output
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got.Genre != "Modern Jazz" || got.Mood != studio.DefaultMood || got.Concept.BPM != 96 || got.Cover != "blue-hour.png" {
		t.Fatalf("output = %+v", got)
	}

	store, err = storage.New("sqlite", db, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = store.Close() }()
	n, err := store.CountTracks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("stored tracks = %d; want 1", n)
	}
}
