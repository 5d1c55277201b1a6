package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	iofs "io/fs"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/musaix/pkg/image"
	"github.com/igolaizola/musaix/pkg/metrics"
	"github.com/igolaizola/musaix/pkg/player"
	"github.com/igolaizola/musaix/pkg/provider"
	"github.com/igolaizola/musaix/pkg/radar"
	"github.com/igolaizola/musaix/pkg/studio"
)

type server struct {
	studio      *studio.Studio
	keys        *provider.Keyring
	metrics     *metrics.Metrics
	sessions    *sessions
	templates   map[string]*template.Template
	credentials map[string]string
	timeout     time.Duration
	debug       bool
}

func newServer(st *studio.Studio, keys *provider.Keyring, m *metrics.Metrics, sess *sessions) (*server, error) {
	tmpls, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	return &server{
		studio:    st,
		keys:      keys,
		metrics:   m,
		sessions:  sess,
		templates: tmpls,
		timeout:   3 * time.Minute,
	}, nil
}

type userKey struct{}

func userFrom(ctx context.Context) *user {
	u, _ := ctx.Value(userKey{}).(*user)
	return u
}

func (s *server) routes() (http.Handler, error) {
	staticFS, err := iofs.Sub(staticContent, "static")
	if err != nil {
		return nil, fmt.Errorf("web: couldn't load static content: %w", err)
	}

	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(s.timeout))
	if s.debug {
		mux.Use(middleware.Logger)
	}

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	mux.Group(func(r chi.Router) {
		// Add BasicAuth middleware
		if len(s.credentials) > 0 {
			r.Use(middleware.BasicAuth("private", s.credentials))
		}

		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

		r.Get("/", s.home)
		r.Get("/login", s.loginPage)
		r.Post("/login", s.login)
		r.Get("/signup", s.signupPage)
		r.Post("/signup", s.signup)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/key", s.keyPage)
			r.Post("/key", s.setKey)

			r.Group(func(r chi.Router) {
				r.Use(s.requireKey)
				r.Get("/app", s.app)
				r.Post("/app/generate", s.generate)
				r.Post("/app/lyrics", s.lyrics)
				r.Post("/app/player/{action}", s.playerAction)
				r.Get("/app/cover", s.cover)
				r.Get("/app/radar.png", s.radar)
				r.Post("/app/share", s.share)
			})
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(s.requireUser)
			r.Use(s.requireKey)
			r.Get("/state", s.apiState)
			r.Post("/generate", s.apiGenerate)
			r.Post("/lyrics", s.apiLyrics)
			r.Post("/player/{action}", s.apiPlayer)
			r.Get("/tracks", s.apiTracks)
		})
	})
	return mux, nil
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func (s *server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.sessions.user(r)
		if !ok {
			if isAPI(r) {
				writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

// requireKey sends the user to select an API key when none is available.
func (s *server) requireKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.keys != nil && !s.keys.HasKey(r.Context()) {
			if isAPI(r) {
				writeError(w, http.StatusPreconditionRequired, errors.New("api key not selected"))
				return
			}
			http.Redirect(w, r, "/key", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) home(w http.ResponseWriter, r *http.Request) {
	u, _ := s.sessions.user(r)
	p := newPage("home", u)
	p.Data = &home{Features: features, Plans: plans}
	s.render(w, http.StatusOK, p)
}

func (s *server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, newPage("login", nil))
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		p := newPage("login", nil)
		p.Error = "Email and password are required"
		p.Values["email"] = email
		s.render(w, http.StatusBadRequest, p)
		return
	}
	name, _, _ := strings.Cut(email, "@")
	s.startSession(w, r, &user{Name: name, Email: email})
}

func (s *server) signupPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, newPage("signup", nil))
}

func (s *server) signup(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.FormValue("name"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if name == "" || email == "" || password == "" {
		p := newPage("signup", nil)
		p.Error = "Name, email and password are required"
		p.Values["name"] = name
		p.Values["email"] = email
		s.render(w, http.StatusBadRequest, p)
		return
	}
	s.startSession(w, r, &user{Name: name, Email: email})
}

func (s *server) startSession(w http.ResponseWriter, r *http.Request, u *user) {
	if err := s.sessions.login(w, u); err != nil {
		log.Println("web: couldn't start session:", err)
		http.Error(w, fmt.Sprintf("couldn't start session: %v", err), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/app", http.StatusSeeOther)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	s.sessions.logout(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *server) keyPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, newPage("key", userFrom(r.Context())))
}

func (s *server) setKey(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		http.Redirect(w, r, "/app", http.StatusSeeOther)
		return
	}
	if err := s.keys.SetKey(r.Context(), r.FormValue("key")); err != nil {
		log.Println("web: couldn't set key:", err)
		p := newPage("key", userFrom(r.Context()))
		p.Error = err.Error()
		s.render(w, http.StatusBadRequest, p)
		return
	}
	http.Redirect(w, r, "/app", http.StatusSeeOther)
}

func (s *server) app(w http.ResponseWriter, r *http.Request) {
	st := s.studio.State()
	p := newPage("app", userFrom(r.Context()))
	p.Data = newDashboard(st, s.studio.Player().Tracks(), s.studio.Player().Waveform())
	if st.Asset.Error != nil {
		p.Error = *st.Asset.Error
	}
	p.Notice = r.URL.Query().Get("notice")
	p.Refresh = st.Asset.Status.Loading() || st.Writing
	s.render(w, http.StatusOK, p)
}

func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	form := studio.Form{
		Genre: r.FormValue("genre"),
		Mood:  r.FormValue("mood"),
		Topic: r.FormValue("topic"),
	}
	if err := s.studio.Start(form); err != nil && !errors.Is(err, studio.ErrBusy) {
		log.Println("web: couldn't start generation:", err)
		http.Error(w, fmt.Sprintf("couldn't start generation: %v", err), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/app", http.StatusSeeOther)
}

func (s *server) lyrics(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.StartFullLyrics(); err != nil && !errors.Is(err, studio.ErrBusy) {
		log.Println("web: couldn't start lyrics:", err)
	}
	http.Redirect(w, r, "/app", http.StatusSeeOther)
}

var errUnknownAction = errors.New("unknown player action")

// control applies a player action.
func control(p *player.Player, action string, r *http.Request) error {
	switch action {
	case "play":
		p.TogglePlay()
	case "next":
		p.Next()
	case "prev":
		p.Prev()
	case "shuffle":
		p.ToggleShuffle()
	case "repeat":
		p.ToggleRepeat()
	case "select":
		i, err := strconv.Atoi(r.FormValue("index"))
		if err != nil {
			return fmt.Errorf("invalid index %q", r.FormValue("index"))
		}
		return p.Select(i)
	default:
		return fmt.Errorf("%w: %s", errUnknownAction, action)
	}
	return nil
}

func (s *server) playerAction(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if err := control(s.studio.Player(), action, r); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errUnknownAction) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	http.Redirect(w, r, "/app", http.StatusSeeOther)
}

func (s *server) cover(w http.ResponseWriter, r *http.Request) {
	track, _ := s.studio.Player().Current()
	if track == nil || track.Cover == nil || len(track.Cover.Data) == 0 {
		http.Error(w, "cover not found", http.StatusNotFound)
		return
	}
	data := track.Cover.Data
	mime := track.Cover.MIME
	if v := r.URL.Query().Get("size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 || size > image.MaxThumbnail {
			http.Error(w, fmt.Sprintf("invalid size %q (max %d)", v, image.MaxThumbnail), http.StatusBadRequest)
			return
		}
		thumb, err := image.Thumbnail(data, mime, size)
		if err != nil {
			log.Println("web: couldn't create thumbnail:", err)
			http.Error(w, fmt.Sprintf("couldn't create thumbnail: %v", err), http.StatusBadRequest)
			return
		}
		data = thumb
		mime = http.DetectContentType(thumb)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", mime)
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", studio.CoverFilename(track)))
	}
	_, _ = w.Write(data)
}

func (s *server) radar(w http.ResponseWriter, r *http.Request) {
	track, _ := s.studio.Player().Current()
	if track == nil {
		http.Error(w, "no track selected", http.StatusNotFound)
		return
	}
	b, err := radar.Plot(track.Concept.MoodAnalysis, track.Concept.Title, "png")
	if err != nil {
		log.Println("web: couldn't plot radar:", err)
		http.Error(w, fmt.Sprintf("couldn't plot radar: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(b)
}

func (s *server) share(w http.ResponseWriter, r *http.Request) {
	track, _ := s.studio.Player().Current()
	target := "/app"
	if msg := studio.ShareMessage(track); msg != "" {
		target += "?notice=" + url.QueryEscape(msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
