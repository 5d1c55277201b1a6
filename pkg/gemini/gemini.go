package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/igolaizola/musaix/pkg/music"
	"google.golang.org/genai"
)

func parts(r *genai.GenerateContentResponse) []*genai.Part {
	if r == nil || len(r.Candidates) == 0 || r.Candidates[0].Content == nil {
		return nil
	}
	return r.Candidates[0].Content.Parts
}

func text(r *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, p := range parts(r) {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

var stringArray = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}

var conceptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"style":       {Type: genai.TypeString},
		"bpm":         {Type: genai.TypeInteger},
		"key":         {Type: genai.TypeString},
		"lyrics":      stringArray,
		"chords":      stringArray,
		"description": {Type: genai.TypeString},
		"moodAnalysis": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"energy":           {Type: genai.TypeNumber},
				"valence":          {Type: genai.TypeNumber},
				"danceability":     {Type: genai.TypeNumber},
				"acousticness":     {Type: genai.TypeNumber},
				"instrumentalness": {Type: genai.TypeNumber},
			},
			Required: []string{"energy", "valence", "danceability", "acousticness", "instrumentalness"},
		},
	},
	Required: []string{"title", "style", "bpm", "key", "lyrics", "chords", "description", "moodAnalysis"},
}

var lyricsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"lyrics": stringArray,
	},
}

// Concept generates a structured song concept.
func (c *Client) Concept(ctx context.Context, genre, mood, topic string) (*music.Concept, error) {
	resp, err := c.generate(ctx, c.textModel, ConceptPrompt(genre, mood, topic), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   conceptSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: couldn't generate concept: %w", err)
	}
	txt := text(resp)
	if txt == "" {
		return nil, errors.New("gemini: no response from gemini")
	}
	var concept music.Concept
	if err := json.Unmarshal([]byte(txt), &concept); err != nil {
		return nil, fmt.Errorf("gemini: couldn't unmarshal concept (%s): %w", txt, err)
	}
	concept.MoodAnalysis = concept.MoodAnalysis.Clamp()
	return &concept, nil
}

// Lyrics generates the complete lyrics of a concept.
func (c *Client) Lyrics(ctx context.Context, concept *music.Concept) ([]string, error) {
	resp, err := c.generate(ctx, c.textModel, LyricsPrompt(concept), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   lyricsSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: couldn't generate lyrics: %w", err)
	}
	txt := text(resp)
	if txt == "" {
		return nil, errors.New("gemini: no response from gemini")
	}
	var out struct {
		Lyrics []string `json:"lyrics"`
	}
	if err := json.Unmarshal([]byte(txt), &out); err != nil {
		return nil, fmt.Errorf("gemini: couldn't unmarshal lyrics (%s): %w", txt, err)
	}
	return out.Lyrics, nil
}

// Cover generates a square cover art image.
func (c *Client) Cover(ctx context.Context, title, style, description string) (*music.Image, error) {
	resp, err := c.generate(ctx, c.imageModel, CoverPrompt(title, style, description), &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: "1:1",
			ImageSize:   "1K",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: couldn't generate cover: %w", err)
	}
	for _, p := range parts(resp) {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		return &music.Image{
			MIME: p.InlineData.MIMEType,
			Data: p.InlineData.Data,
		}, nil
	}
	return nil, errors.New("gemini: failed to generate image")
}
