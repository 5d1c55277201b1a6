package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/igolaizola/musaix/pkg/music"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(&Config{
		KeyStore: staticKey("test"),
		BaseURL:  srv.URL + "/v1",
	})
}

type staticKey string

func (k staticKey) GetKey(ctx context.Context) (string, error) {
	if k == "" {
		return "", errors.New("no key")
	}
	return string(k), nil
}

// switchKey returns the latest key set.
type switchKey struct {
	lck sync.Mutex
	key string
}

func (k *switchKey) set(key string) {
	k.lck.Lock()
	defer k.lck.Unlock()
	k.key = key
}

func (k *switchKey) GetKey(ctx context.Context) (string, error) {
	k.lck.Lock()
	defer k.lck.Unlock()
	if k.key == "" {
		return "", errors.New("no key")
	}
	return k.key, nil
}

func chatResponse(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []any{
			map[string]any{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	})
}

func TestConcept(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		format, _ := req["response_format"].(map[string]any)
		if format["type"] != "json_object" {
			t.Errorf("response_format = %v", req["response_format"])
		}
		chatResponse(w, `{"title":"Neon Rain","style":"Cyberpunk Synthwave","bpm":110,"key":"F# minor","lyrics":["a"],"chords":["F#m"],"description":"d","moodAnalysis":{"energy":80,"valence":-3,"danceability":70,"acousticness":5,"instrumentalness":40}}`)
	})
	concept, err := c.Concept(context.Background(), "Cyberpunk Synthwave", "Dark", "City")
	if err != nil {
		t.Fatalf("Concept() err = %v; want nil", err)
	}
	if concept.Title != "Neon Rain" || concept.BPM != 110 {
		t.Fatalf("Concept() = %+v", concept)
	}
	if concept.MoodAnalysis.Valence != 0 {
		t.Fatalf("valence = %v; want 0", concept.MoodAnalysis.Valence)
	}
}

func TestLyrics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatResponse(w, `{"lyrics":["[Verse 1]","one","[Chorus]","two"]}`)
	})
	lyrics, err := c.Lyrics(context.Background(), &music.Concept{Title: "Neon Rain"})
	if err != nil {
		t.Fatalf("Lyrics() err = %v; want nil", err)
	}
	if len(lyrics) != 4 {
		t.Fatalf("Lyrics() = %v", lyrics)
	}
}

func TestCover(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data": []any{
				map[string]any{"b64_json": base64.StdEncoding.EncodeToString([]byte("img"))},
			},
		})
	})
	img, err := c.Cover(context.Background(), "t", "s", "d")
	if err != nil {
		t.Fatalf("Cover() err = %v; want nil", err)
	}
	if string(img.Data) != "img" {
		t.Fatalf("Cover() data = %q", img.Data)
	}
}

func TestKeyPerRequest(t *testing.T) {
	var got []string
	var lck sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lck.Lock()
		got = append(got, r.Header.Get("Authorization"))
		lck.Unlock()
		chatResponse(w, `{"lyrics":["a"]}`)
	}))
	defer srv.Close()

	keys := &switchKey{}
	c := New(&Config{KeyStore: keys, BaseURL: srv.URL + "/v1"})
	ctx := context.Background()

	// No key selected yet
	if _, err := c.Lyrics(ctx, &music.Concept{}); err == nil {
		t.Fatal("Lyrics() err = nil; want error")
	}
	keys.set("old")
	if _, err := c.Lyrics(ctx, &music.Concept{}); err != nil {
		t.Fatal(err)
	}
	keys.set("new")
	if _, err := c.Lyrics(ctx, &music.Concept{}); err != nil {
		t.Fatal(err)
	}
	want := []string{"Bearer old", "Bearer new"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("authorization = %v; want %v", got, want)
	}
}

func TestUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
	})
	_, err := c.Concept(context.Background(), "a", "b", "c")
	if !errors.Is(err, music.ErrKeyNotFound) {
		t.Fatalf("Concept() err = %v; want ErrKeyNotFound", err)
	}
}
