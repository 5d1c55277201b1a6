package music

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Genres offered by the composer form.
var Genres = []string{
	"Lo-Fi Hip Hop",
	"Cyberpunk Synthwave",
	"Ambient Electronic",
	"Modern Jazz",
	"Indie Pop",
	"Dark Techno",
}

const maxGenreDistance = 3

// MatchGenre snaps a free text genre to the closest entry of the catalogue.
// Inputs too far from every entry are returned trimmed but unchanged.
func MatchGenre(genre string) string {
	genre = strings.TrimSpace(genre)
	if genre == "" {
		return Genres[0]
	}
	needle := strings.ToLower(genre)
	best := ""
	bestDistance := maxGenreDistance + 1
	for _, g := range Genres {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(g))
		if d < bestDistance {
			best = g
			bestDistance = d
		}
	}
	if best == "" {
		return genre
	}
	return best
}
