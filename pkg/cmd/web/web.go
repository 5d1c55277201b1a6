package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/igolaizola/musaix/pkg/filestore"
	"github.com/igolaizola/musaix/pkg/metrics"
	"github.com/igolaizola/musaix/pkg/player"
	"github.com/igolaizola/musaix/pkg/provider"
	"github.com/igolaizola/musaix/pkg/storage"
	"github.com/igolaizola/musaix/pkg/studio"
	"github.com/pkg/browser"
)

type Config struct {
	Debug  bool
	DBType string
	DBConn string
	FSType string
	FSConn string
	Proxy  string

	Addr          string
	Credentials   map[string]string
	Open          bool
	SessionSecret string
	SessionTTL    time.Duration
	SecureCookie  bool
	Timeout       time.Duration
	Restore       int

	Provider provider.Config
}

// Serve starts the studio web server.
func Serve(ctx context.Context, cfg *Config) error {
	log.Println("web: server started")
	defer log.Println("web: server ended")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	// Database and file storage are optional
	var store *storage.Store
	if cfg.DBType != "" {
		var err error
		store, err = storage.New(cfg.DBType, cfg.DBConn, cfg.Debug)
		if err != nil {
			return fmt.Errorf("web: couldn't create orm store: %w", err)
		}
		if err := store.Start(ctx); err != nil {
			return fmt.Errorf("web: couldn't start orm store: %w", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("web: couldn't migrate database: %w", err)
		}
	}
	var fs *filestore.Store
	if cfg.FSType != "" {
		var err error
		fs, err = filestore.New(cfg.FSType, cfg.FSConn, cfg.Proxy, cfg.Debug, store)
		if err != nil {
			return fmt.Errorf("web: couldn't create file storage: %w", err)
		}
	}

	pcfg := cfg.Provider
	pcfg.Debug = cfg.Debug
	if pcfg.Proxy == "" {
		pcfg.Proxy = cfg.Proxy
	}
	gen, err := provider.New(ctx, &pcfg, store)
	if err != nil {
		return fmt.Errorf("web: couldn't create provider: %w", err)
	}
	debug("web: using %s (%s, %s)", gen.Name, gen.TextModel, gen.ImageModel)

	m := metrics.New(gen.Name)
	scfg := &studio.Config{
		Generator:  gen,
		Player:     player.New(nil),
		Observer:   m,
		SelectKey:  gen.Keyring.Reset,
		TextModel:  gen.TextModel,
		ImageModel: gen.ImageModel,
		Timeout:    cfg.Timeout,
		Debug:      cfg.Debug,
	}
	if store != nil {
		scfg.Archive = studio.NewArchive(store, fs, gen.Name)
	}
	st, err := studio.New(scfg)
	if err != nil {
		return fmt.Errorf("web: couldn't create studio: %w", err)
	}
	defer st.Close()
	if cfg.Restore > 0 {
		if err := st.Restore(ctx, cfg.Restore); err != nil {
			log.Println("web: couldn't restore tracks:", err)
		}
	}

	sess, err := newSessions(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		return err
	}
	sess.secure = cfg.SecureCookie
	srv, err := newServer(st, gen.Keyring, m, sess)
	if err != nil {
		return err
	}
	srv.credentials = cfg.Credentials
	srv.debug = cfg.Debug
	if cfg.Timeout > 0 {
		srv.timeout = cfg.Timeout + 30*time.Second
	}
	handler, err := srv.routes()
	if err != nil {
		return err
	}

	// Create server
	split := strings.Split(cfg.Addr, ":")
	if len(split) != 2 {
		return fmt.Errorf("web: invalid address: %s", cfg.Addr)
	}
	host := split[0]
	port, err := strconv.Atoi(split[1])
	if err != nil {
		return fmt.Errorf("web: invalid port: %s", split[1])
	}
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: handler,
	}
	errC := make(chan error, 1)
	go func() {
		note := fmt.Sprintf("http://%s:%d", host, port)
		if host == "" {
			note = fmt.Sprintf("all interfaces http://localhost:%d", port)
		}
		log.Printf("web: starting server on %s\n", note)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- fmt.Errorf("web: failed to start server: %w", err)
		}
	}()

	if cfg.Open {
		u := fmt.Sprintf("http://localhost:%d", port)
		if host != "" {
			u = fmt.Sprintf("http://%s:%d", host, port)
		}
		if err := browser.OpenURL(u); err != nil {
			log.Println("web: couldn't open browser:", err)
		}
	}

	select {
	case <-ctx.Done():
	case err := <-errC:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web: couldn't shutdown server: %w", err)
	}
	return nil
}
