package gemini

import (
	"fmt"

	"github.com/igolaizola/musaix/pkg/music"
)

func ConceptPrompt(genre, mood, topic string) string {
	return fmt.Sprintf(`Create a detailed song concept for a %s track.
Mood: %s
Topic: %s

Return a structured JSON object containing the song title, estimated BPM, musical key,
a verse and chorus of lyrics, chord progression, a short description,
and a mood analysis (numbers 0-100) for energy, valence, danceability, acousticness, and instrumentalness.`,
		genre, mood, topic)
}

func LyricsPrompt(c *music.Concept) string {
	return fmt.Sprintf(`Write full, complete lyrics (Verse 1, Chorus, Verse 2, Chorus, Bridge, Chorus, Outro)
for a song with the following details:
Title: %q
Style: %q
Topic/Description: %q
Key: %q
BPM: %d

The lyrics should be creative, rhyming, and fit the style.

Return a JSON object with a property 'lyrics' which is an array of strings, where each string is a line of the lyrics or a section header (e.g. [Chorus]).`,
		c.Title, c.Style, c.Description, c.Key, c.BPM)
}

func CoverPrompt(title, style, description string) string {
	return fmt.Sprintf(`Create a high-quality, artistic album cover for a song titled %q.
Genre/Style: %s.
Vibe: %s.
The image should be abstract, visually striking, and suitable for a music streaming platform.
Do not include text on the image.`,
		title, style, description)
}
