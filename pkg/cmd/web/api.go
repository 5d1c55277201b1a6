package web

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/igolaizola/musaix/pkg/music"
	"github.com/igolaizola/musaix/pkg/player"
	"github.com/igolaizola/musaix/pkg/studio"
)

type playerResponse struct {
	Index    int           `json:"index"`
	Len      int           `json:"len"`
	Playing  bool          `json:"playing"`
	Shuffle  bool          `json:"shuffle"`
	Repeat   player.Repeat `json:"repeat"`
	Elapsed  string        `json:"elapsed"`
	Duration string        `json:"duration"`
}

func newPlayerResponse(s player.State) *playerResponse {
	return &playerResponse{
		Index:    s.Index,
		Len:      s.Len,
		Playing:  s.Playing,
		Shuffle:  s.Shuffle,
		Repeat:   s.Repeat,
		Elapsed:  player.Clock(s.Elapsed),
		Duration: player.Clock(s.Duration),
	}
}

type trackResponse struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"createdAt"`
	Genre     string        `json:"genre"`
	Mood      string        `json:"mood"`
	Topic     string        `json:"topic"`
	Concept   music.Concept `json:"concept"`
	HasCover  bool          `json:"hasCover"`
}

func newTrackResponse(t *music.Track) *trackResponse {
	if t == nil {
		return nil
	}
	return &trackResponse{
		ID:        t.ID,
		CreatedAt: t.CreatedAt,
		Genre:     t.Genre,
		Mood:      t.Mood,
		Topic:     t.Topic,
		Concept:   t.Concept,
		HasCover:  t.Cover != nil && len(t.Cover.Data) > 0,
	}
}

type stateResponse struct {
	Form       studio.Form     `json:"form"`
	Asset      music.Asset     `json:"asset"`
	Writing    bool            `json:"writing"`
	Player     *playerResponse `json:"player"`
	Track      *trackResponse  `json:"track"`
	TextModel  string          `json:"textModel"`
	ImageModel string          `json:"imageModel"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) state() *stateResponse {
	st := s.studio.State()
	return &stateResponse{
		Form:       st.Form,
		Asset:      st.Asset,
		Writing:    st.Writing,
		Player:     newPlayerResponse(st.Player),
		Track:      newTrackResponse(st.Player.Track),
		TextModel:  st.TextModel,
		ImageModel: st.ImageModel,
	}
}

func (s *server) apiState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// apiGenerate runs a generation and replies with the new track. An empty
// body reuses the current form.
func (s *server) apiGenerate(w http.ResponseWriter, r *http.Request) {
	form := s.studio.State().Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	track, err := s.studio.Generate(r.Context(), form)
	switch {
	case errors.Is(err, studio.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, newTrackResponse(track))
}

func (s *server) apiLyrics(w http.ResponseWriter, r *http.Request) {
	err := s.studio.FullLyrics(r.Context())
	switch {
	case errors.Is(err, studio.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}
	track, _ := s.studio.Player().Current()
	writeJSON(w, http.StatusOK, newTrackResponse(track))
}

func (s *server) apiPlayer(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if err := control(s.studio.Player(), action, r); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUnknownAction) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlayerResponse(s.studio.Player().State()))
}

func (s *server) apiTracks(w http.ResponseWriter, r *http.Request) {
	tracks := s.studio.Player().Tracks()
	resp := make([]*trackResponse, 0, len(tracks))
	for _, t := range tracks {
		resp = append(resp, newTrackResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}
