package player

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/igolaizola/musaix/pkg/music"
)

// Repeat mode of the player.
type Repeat string

const (
	RepeatNone Repeat = "none"
	RepeatAll  Repeat = "all"
	RepeatOne  Repeat = "one"
)

const (
	DefaultDuration = 3*time.Minute + 30*time.Second
	WaveformBars    = 40
)

var ErrOutOfRange = errors.New("player: track index out of range")

type Config struct {
	// Duration of every simulated track.
	Duration time.Duration
	Rand     *rand.Rand
	Now      func() time.Time
}

// Player is a playlist with a simulated playback clock.
// It is safe for concurrent use.
type Player struct {
	lck      sync.Mutex
	tracks   []*music.Track
	index    int
	playing  bool
	shuffle  bool
	repeat   Repeat
	elapsed  time.Duration
	since    time.Time
	duration time.Duration
	rnd      *rand.Rand
	now      func() time.Time
}

func New(cfg *Config) *Player {
	if cfg == nil {
		cfg = &Config{}
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Player{
		index:    -1,
		repeat:   RepeatNone,
		duration: duration,
		rnd:      rnd,
		now:      now,
	}
}

// State is a snapshot of the player.
type State struct {
	Index    int
	Len      int
	Playing  bool
	Shuffle  bool
	Repeat   Repeat
	Elapsed  time.Duration
	Duration time.Duration
	Track    *music.Track
}

func (p *Player) State() State {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.sync()
	s := State{
		Index:    p.index,
		Len:      len(p.tracks),
		Playing:  p.playing,
		Shuffle:  p.shuffle,
		Repeat:   p.repeat,
		Elapsed:  p.elapsed,
		Duration: p.duration,
	}
	if p.index >= 0 && p.index < len(p.tracks) {
		s.Track = p.tracks[p.index]
	}
	return s
}

// Tracks returns a copy of the playlist.
func (p *Player) Tracks() []*music.Track {
	p.lck.Lock()
	defer p.lck.Unlock()
	return append([]*music.Track(nil), p.tracks...)
}

func (p *Player) Len() int {
	p.lck.Lock()
	defer p.lck.Unlock()
	return len(p.tracks)
}

// Current returns the current track and its index, or nil and -1.
func (p *Player) Current() (*music.Track, int) {
	s := p.State()
	return s.Track, s.Index
}

// Add appends a track, selects it and starts playing.
func (p *Player) Add(t *music.Track) int {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.tracks = append(p.tracks, t)
	p.index = len(p.tracks) - 1
	p.restart()
	return p.index
}

// Load replaces the playlist without selecting or playing anything.
func (p *Player) Load(tracks []*music.Track) {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.tracks = append([]*music.Track(nil), tracks...)
	p.index = -1
	if len(p.tracks) > 0 {
		p.index = 0
	}
	p.playing = false
	p.elapsed = 0
}

// Select jumps to the given track and plays it.
func (p *Player) Select(i int) error {
	p.lck.Lock()
	defer p.lck.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	p.index = i
	p.restart()
	return nil
}

// Update replaces the track at the given index with the result of fn.
func (p *Player) Update(i int, fn func(t music.Track) music.Track) error {
	p.lck.Lock()
	defer p.lck.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, i)
	}
	t := fn(*p.tracks[i])
	p.tracks[i] = &t
	return nil
}

// Next moves to the next track. With shuffle a random track is picked,
// avoiding the current one when there is more than one track. Without
// shuffle the last track only wraps around when repeating all.
func (p *Player) Next() {
	p.lck.Lock()
	defer p.lck.Unlock()
	if len(p.tracks) == 0 {
		return
	}
	p.sync()
	switch {
	case p.shuffle:
		p.index = p.shuffleIndex()
	case p.index < len(p.tracks)-1:
		p.index++
	case p.repeat == RepeatAll:
		p.index = 0
	}
	p.restart()
}

// Prev moves to the previous track, wrapping to the last one only when
// repeating all.
func (p *Player) Prev() {
	p.lck.Lock()
	defer p.lck.Unlock()
	if len(p.tracks) == 0 {
		return
	}
	p.sync()
	switch {
	case p.index > 0:
		p.index--
	case p.repeat == RepeatAll:
		p.index = len(p.tracks) - 1
	}
	p.restart()
}

func (p *Player) shuffleIndex() int {
	n := len(p.tracks)
	next := p.rnd.Intn(n)
	if n > 1 && next == p.index {
		next = (next + 1) % n
	}
	return next
}

// TogglePlay switches between playing and paused.
func (p *Player) TogglePlay() bool {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.sync()
	if p.index < 0 {
		return false
	}
	p.playing = !p.playing
	p.since = p.now()
	return p.playing
}

func (p *Player) ToggleShuffle() bool {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.shuffle = !p.shuffle
	return p.shuffle
}

// ToggleRepeat cycles none -> all -> one -> none.
func (p *Player) ToggleRepeat() Repeat {
	p.lck.Lock()
	defer p.lck.Unlock()
	switch p.repeat {
	case RepeatNone:
		p.repeat = RepeatAll
	case RepeatAll:
		p.repeat = RepeatOne
	default:
		p.repeat = RepeatNone
	}
	return p.repeat
}

// Waveform returns the bar heights (percent) of the animated waveform.
func (p *Player) Waveform() []int {
	p.lck.Lock()
	defer p.lck.Unlock()
	bars := make([]int, WaveformBars)
	for i := range bars {
		if !p.playing {
			bars[i] = 10
			continue
		}
		h := int(p.rnd.Float64() * 90)
		if h < 15 {
			h = 15
		}
		bars[i] = h
	}
	return bars
}

func (p *Player) restart() {
	p.playing = true
	p.elapsed = 0
	p.since = p.now()
}

// sync accumulates the playback clock and handles track ends.
func (p *Player) sync() {
	if !p.playing {
		return
	}
	now := p.now()
	p.elapsed += now.Sub(p.since)
	p.since = now
	for p.playing && p.elapsed >= p.duration && len(p.tracks) > 0 {
		p.elapsed -= p.duration
		p.ended()
	}
}

func (p *Player) ended() {
	switch {
	case p.repeat == RepeatOne:
	case p.shuffle:
		p.index = p.shuffleIndex()
	case p.index < len(p.tracks)-1:
		p.index++
	case p.repeat == RepeatAll:
		p.index = 0
	default:
		p.playing = false
		p.elapsed = 0
	}
}

// Clock formats a duration as m:ss.
func Clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
