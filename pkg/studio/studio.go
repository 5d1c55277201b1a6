package studio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/igolaizola/musaix/pkg/image"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/player"
	"github.com/oklog/ulid/v2"
)

var ErrBusy = errors.New("studio: a generation is already in progress")

const (
	DefaultGenre = "Lo-Fi Hip Hop"
	DefaultMood  = "Chill"
	DefaultTopic = "Late night coding"

	KeyRefreshed         = "API Key refreshed. Please try again."
	DefaultCoverFilename = "musaix-art.png"
	unexpectedError      = "An unexpected error occurred."
)

// Form holds the inputs of a generation.
type Form struct {
	Genre string `json:"genre"`
	Mood  string `json:"mood"`
	Topic string `json:"topic"`
}

func DefaultForm() Form {
	return Form{
		Genre: DefaultGenre,
		Mood:  DefaultMood,
		Topic: DefaultTopic,
	}
}

// Archive persists generated tracks.
type Archive interface {
	SaveTrack(ctx context.Context, t *music.Track) error
	SaveCover(ctx context.Context, id string, img *music.Image) error
	LoadTracks(ctx context.Context, limit int) ([]*music.Track, error)
}

// Observer is notified about generation results.
type Observer interface {
	Generation(stage string, err error, d time.Duration)
	Lyrics(err error, d time.Duration)
	Playlist(n int)
}

type Config struct {
	Generator music.Generator
	Player    *player.Player
	Archive   Archive
	Observer  Observer

	// SelectKey is called to select new credentials when the provider
	// doesn't recognize the current ones.
	SelectKey func(ctx context.Context) error

	TextModel  string
	ImageModel string
	Timeout    time.Duration
	Debug      bool
}

// Studio runs generations and keeps the dashboard state.
// It is safe for concurrent use.
type Studio struct {
	gen       music.Generator
	player    *player.Player
	archive   Archive
	observer  Observer
	selectKey func(ctx context.Context) error

	textModel  string
	imageModel string
	timeout    time.Duration
	debug      bool

	lck     sync.Mutex
	form    Form
	busy    bool
	writing bool
	concept *music.Concept
	cover   *music.Image
	status  music.Status
	err     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *Config) (*Studio, error) {
	if cfg.Generator == nil {
		return nil, errors.New("studio: generator is required")
	}
	p := cfg.Player
	if p == nil {
		p = player.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Studio{
		gen:        cfg.Generator,
		player:     p,
		archive:    cfg.Archive,
		observer:   cfg.Observer,
		selectKey:  cfg.SelectKey,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		timeout:    cfg.Timeout,
		debug:      cfg.Debug,
		form:       DefaultForm(),
		status:     music.Idle,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (s *Studio) log(format string, args ...interface{}) {
	if s.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Player returns the playlist of the studio.
func (s *Studio) Player() *player.Player {
	return s.player
}

// Close cancels background generations and waits for them to end.
func (s *Studio) Close() {
	s.cancel()
	s.wg.Wait()
}

// Restore loads the latest stored tracks into the playlist.
func (s *Studio) Restore(ctx context.Context, limit int) error {
	if s.archive == nil {
		return nil
	}
	tracks, err := s.archive.LoadTracks(ctx, limit)
	if err != nil {
		return fmt.Errorf("studio: couldn't load tracks: %w", err)
	}
	s.player.Load(tracks)
	s.notifyPlaylist()
	log.Printf("studio: restored %d tracks\n", len(tracks))
	return nil
}

// State is a snapshot of the dashboard.
type State struct {
	Form       Form
	Asset      music.Asset
	Writing    bool
	Player     player.State
	TextModel  string
	ImageModel string
}

func (s *Studio) State() State {
	s.lck.Lock()
	st := State{
		Form:       s.form,
		Asset:      s.asset(),
		Writing:    s.writing,
		TextModel:  s.textModel,
		ImageModel: s.imageModel,
	}
	s.lck.Unlock()
	st.Player = s.player.State()
	return st
}

func (s *Studio) asset() music.Asset {
	a := music.Asset{Status: s.status}
	if s.concept != nil {
		c := *s.concept
		a.Concept = &c
	}
	if u := s.cover.DataURL(); u != "" {
		a.CoverArtURL = &u
	}
	if s.err != "" {
		e := s.err
		a.Error = &e
	}
	return a
}

// Busy reports whether a generation is in flight.
func (s *Studio) Busy() bool {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.busy
}

// Start launches a generation in the background.
func (s *Studio) Start(form Form) error {
	form, err := s.begin(form)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.run(s.ctx, form); err != nil {
			log.Printf("studio: generation failed: %v\n", err)
		}
	}()
	return nil
}

// Generate runs a generation and returns the new track.
func (s *Studio) Generate(ctx context.Context, form Form) (*music.Track, error) {
	form, err := s.begin(form)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, form)
}

func (s *Studio) begin(form Form) (Form, error) {
	form.Genre = music.MatchGenre(form.Genre)
	form.Mood = strings.TrimSpace(form.Mood)
	form.Topic = strings.TrimSpace(form.Topic)

	s.lck.Lock()
	defer s.lck.Unlock()
	if s.busy {
		return form, ErrBusy
	}
	s.busy = true
	s.form = form
	s.status = music.GeneratingText
	s.err = ""
	return form, nil
}

func (s *Studio) run(ctx context.Context, form Form) (*music.Track, error) {
	defer func() {
		s.lck.Lock()
		s.busy = false
		s.lck.Unlock()
	}()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.log("studio: generating concept %s / %s / %s", form.Genre, form.Mood, form.Topic)
	start := time.Now()
	concept, err := s.gen.Concept(ctx, form.Genre, form.Mood, form.Topic)
	if err == nil {
		err = concept.Validate()
	}
	s.observe("concept", err, start)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	s.lck.Lock()
	s.concept = concept
	s.status = music.GeneratingImage
	s.lck.Unlock()

	s.log("studio: generating cover for %q", concept.Title)
	start = time.Now()
	cover, err := s.gen.Cover(ctx, concept.Title, concept.Style, concept.Description)
	s.observe("cover", err, start)
	if err != nil {
		return nil, s.fail(ctx, err)
	}

	track := &music.Track{
		ID:        ulid.Make().String(),
		CreatedAt: time.Now().UTC(),
		Genre:     form.Genre,
		Mood:      form.Mood,
		Topic:     form.Topic,
		Concept:   *concept,
		Cover:     cover,
	}
	s.player.Add(track)
	s.notifyPlaylist()

	s.lck.Lock()
	s.cover = cover
	s.status = music.Completed
	s.lck.Unlock()
	log.Printf("studio: generated %q (%s)\n", concept.Title, track.ID)

	s.save(ctx, track, true)
	return track, nil
}

func (s *Studio) fail(ctx context.Context, err error) error {
	msg := err.Error()
	if msg == "" {
		msg = unexpectedError
	}
	if errors.Is(err, music.ErrKeyNotFound) && s.selectKey != nil {
		if serr := s.selectKey(ctx); serr != nil {
			log.Printf("studio: couldn't select key: %v\n", serr)
		} else {
			msg = KeyRefreshed
		}
	}
	s.lck.Lock()
	s.status = music.Failed
	s.err = msg
	s.lck.Unlock()
	return err
}

func (s *Studio) observe(stage string, err error, start time.Time) {
	if s.observer != nil {
		s.observer.Generation(stage, err, time.Since(start))
	}
}

func (s *Studio) notifyPlaylist() {
	if s.observer != nil {
		s.observer.Playlist(s.player.Len())
	}
}

func (s *Studio) save(ctx context.Context, track *music.Track, cover bool) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveTrack(ctx, track); err != nil {
		log.Printf("studio: couldn't save track %s: %v\n", track.ID, err)
		return
	}
	if !cover || track.Cover == nil {
		return
	}
	if err := s.archive.SaveCover(ctx, track.ID, track.Cover); err != nil {
		log.Printf("studio: couldn't save cover %s: %v\n", track.ID, err)
	}
}

// Writing reports whether full lyrics are being generated.
func (s *Studio) Writing() bool {
	s.lck.Lock()
	defer s.lck.Unlock()
	return s.writing
}

// FullLyrics replaces the lyrics of the current track with a complete
// version. It does nothing when there is no current track.
func (s *Studio) FullLyrics(ctx context.Context) error {
	track, idx, err := s.beginLyrics()
	if err != nil || track == nil {
		return err
	}
	return s.runLyrics(ctx, track, idx)
}

// StartFullLyrics runs FullLyrics in the background.
func (s *Studio) StartFullLyrics() error {
	track, idx, err := s.beginLyrics()
	if err != nil || track == nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.runLyrics(s.ctx, track, idx)
	}()
	return nil
}

func (s *Studio) beginLyrics() (*music.Track, int, error) {
	track, idx := s.player.Current()
	if track == nil {
		return nil, -1, nil
	}
	s.lck.Lock()
	defer s.lck.Unlock()
	if s.writing {
		return nil, -1, ErrBusy
	}
	s.writing = true
	return track, idx, nil
}

func (s *Studio) runLyrics(ctx context.Context, track *music.Track, idx int) error {
	defer func() {
		s.lck.Lock()
		s.writing = false
		s.lck.Unlock()
	}()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	concept := track.Concept
	lyrics, err := s.gen.Lyrics(ctx, &concept)
	if s.observer != nil {
		s.observer.Lyrics(err, time.Since(start))
	}
	if err != nil {
		log.Printf("studio: failed to generate lyrics: %v\n", err)
		return fmt.Errorf("studio: couldn't generate lyrics: %w", err)
	}

	var updated music.Track
	if err := s.player.Update(idx, func(t music.Track) music.Track {
		t.Concept.Lyrics = lyrics
		updated = t
		return t
	}); err != nil {
		return fmt.Errorf("studio: couldn't update track: %w", err)
	}
	s.save(ctx, &updated, false)
	return nil
}

var whitespace = regexp.MustCompile(`\s+`)

// CoverFilename returns the download name of the cover art of a track.
// The extension follows the format of the cover.
func CoverFilename(t *music.Track) string {
	ext := ".png"
	if t != nil && t.Cover != nil {
		ext = image.Ext(t.Cover.MIME)
	}
	if t == nil || t.Concept.Title == "" {
		return strings.TrimSuffix(DefaultCoverFilename, ".png") + ext
	}
	return strings.ToLower(whitespace.ReplaceAllString(t.Concept.Title, "-")) + ext
}

// ShareMessage returns the confirmation shown after sharing a track.
func ShareMessage(t *music.Track) string {
	if t == nil {
		return ""
	}
	return fmt.Sprintf("Shared \"%s\" successfully!", t.Concept.Title)
}

// ProductionNote returns the production tip shown next to the chords.
func ProductionNote(mood string) string {
	return fmt.Sprintf("This progression works best with a syncopated bassline. Consider adding reverb to the snare for that %s atmosphere.", strings.ToLower(mood))
}
