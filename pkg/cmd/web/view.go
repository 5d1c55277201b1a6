package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"

	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/player"
	"github.com/igolaizola/musaix/pkg/radar"
	"github.com/igolaizola/musaix/pkg/studio"
)

//go:embed templates/*.html
var templateContent embed.FS

//go:embed static/*
var staticContent embed.FS

var pages = []string{"home", "login", "signup", "key", "app"}

func parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"inc":     func(i int) int { return i + 1 },
		"section": isSection,
	}
	tmpls := map[string]*template.Template{}
	for _, p := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateContent,
			"templates/layout.html", fmt.Sprintf("templates/%s.html", p))
		if err != nil {
			return nil, fmt.Errorf("web: couldn't parse template %s: %w", p, err)
		}
		tmpls[p] = t
	}
	return tmpls, nil
}

// page is the data of every rendered view.
type page struct {
	View    string
	Title   string
	User    *user
	Error   string
	Notice  string
	Refresh bool

	// Navbar and footer are only shown on the home and app views
	Chrome       bool
	PrimaryLabel string
	PrimaryHref  string

	Values map[string]string
	Data   any
}

func newPage(view string, u *user) *page {
	p := &page{
		View:   view,
		Title:  "Musaix Pro",
		User:   u,
		Values: map[string]string{},
	}
	switch view {
	case "home":
		p.Chrome = true
		p.PrimaryLabel = "Sign Up"
		p.PrimaryHref = "/signup"
	case "app":
		p.Chrome = true
		p.PrimaryLabel = "New Project"
		p.PrimaryHref = "/app"
		p.Title = "Musaix Pro Studio"
	}
	return p
}

func (s *server) render(w http.ResponseWriter, status int, p *page) {
	t, ok := s.templates[p.View]
	if !ok {
		http.Error(w, fmt.Sprintf("unknown view %s", p.View), http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		log.Printf("web: couldn't render %s: %v\n", p.View, err)
		http.Error(w, fmt.Sprintf("couldn't render %s: %v", p.View, err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

type feature struct {
	Title       string
	Description string
}

var features = []feature{
	{"AI Composition", "Generate original melodies, harmonies, and rhythms using advanced machine learning algorithms."},
	{"Smart Mixing", "Automatically balance and enhance your tracks with AI-powered mixing and mastering tools."},
	{"Voice Synthesis", "Create realistic vocal performances in any style or language with our neural voice engine."},
	{"Style Transfer", "Transform your music into any genre or style while preserving the original melody."},
	{"Collaboration", "Work together in real-time with other musicians and producers from around the world."},
	{"Audio Enhancement", "Improve audio quality, remove noise, and restore old recordings with AI processing."},
}

type plan struct {
	Name     string
	Price    int
	Features []string
	Action   string
	Popular  bool
}

var plans = []plan{
	{
		Name:     "Starter",
		Price:    0,
		Features: []string{"5 Songs per month", "Standard Quality Art", "MP3 Download"},
		Action:   "Get Started",
	},
	{
		Name:     "Pro Artist",
		Price:    29,
		Features: []string{"Unlimited Songs", "Gemini 3.0 Art Gen", "WAV + Stems Export", "Commercial Rights", "Priority Support"},
		Action:   "Upgrade Now",
		Popular:  true,
	},
	{
		Name:     "Studio",
		Price:    99,
		Features: []string{"Everything in Pro", "API Access", "Multi-User Team", "Custom Voice Training"},
		Action:   "Contact Sales",
	},
}

type home struct {
	Features []feature
	Plans    []plan
}

var modelNames = map[string]string{
	"gemini-2.5-flash":           "Gemini 2.5 Flash",
	"gemini-3-pro-image-preview": "Gemini 3.0 Pro Image",
}

func modelName(id string) string {
	if n, ok := modelNames[id]; ok {
		return n
	}
	return id
}

const (
	radarSize   = 240
	radarRadius = 90
)

type radarView struct {
	Size    int
	Center  int
	Grid    []string
	Polygon string
	Axes    []radar.Axis
}

type dashboard struct {
	Form        studio.Form
	Genres      []string
	Loading     bool
	ButtonLabel string

	TextModel  string
	ImageModel string

	Player   player.State
	Tracks   []*music.Track
	Track    *music.Track
	HasCover bool
	Elapsed  string
	Duration string
	Progress int
	Waveform []int
	Writing  bool
	Radar    radarView
	Note     string
}

func newDashboard(st studio.State, tracks []*music.Track, waveform []int) *dashboard {
	d := &dashboard{
		Form:        st.Form,
		Genres:      music.Genres,
		Loading:     st.Asset.Status.Loading(),
		ButtonLabel: "Generate Track",
		TextModel:   modelName(st.TextModel),
		ImageModel:  modelName(st.ImageModel),
		Player:      st.Player,
		Tracks:      tracks,
		Track:       st.Player.Track,
		Elapsed:     player.Clock(st.Player.Elapsed),
		Duration:    player.Clock(st.Player.Duration),
		Waveform:    waveform,
		Writing:     st.Writing,
		Note:        studio.ProductionNote(st.Form.Mood),
	}
	switch st.Asset.Status {
	case music.GeneratingText:
		d.ButtonLabel = "Composing..."
	case music.GeneratingImage:
		d.ButtonLabel = "Designing Art..."
	}
	if st.Player.Duration > 0 {
		d.Progress = int(100 * st.Player.Elapsed / st.Player.Duration)
	}
	if d.Track != nil {
		d.HasCover = d.Track.Cover != nil && len(d.Track.Cover.Data) > 0
		m := d.Track.Concept.MoodAnalysis
		c := float64(radarSize / 2)
		d.Radar = radarView{
			Size:    radarSize,
			Center:  radarSize / 2,
			Grid:    radar.Grid(c, c, radarRadius),
			Polygon: radar.Polygon(m, c, c, radarRadius),
			Axes:    radar.Axes(m, c, c, radarRadius+14),
		}
	}
	return d
}

// isSection reports whether a lyrics line is a section header like [Chorus].
func isSection(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
}
