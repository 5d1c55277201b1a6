package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/musaix/pkg/cmd/compose"
	"github.com/igolaizola/musaix/pkg/cmd/export"
	"github.com/igolaizola/musaix/pkg/cmd/migrate"
	"github.com/igolaizola/musaix/pkg/cmd/radar"
	"github.com/igolaizola/musaix/pkg/cmd/setting"
	"github.com/igolaizola/musaix/pkg/cmd/web"
	"github.com/igolaizola/musaix/pkg/provider"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("musaix", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "musaix [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newSettingCommand(),
			newServeCommand(),
			newComposeCommand(),
			newExportCommand(),
			newRadarCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "musaix version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func options() []ff.Option {
	return []ff.Option{
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ffyaml.Parser),
		ff.WithEnvVarPrefix("MUSAIX"),
	}
}

func dbFlags(fs *flag.FlagSet, dbType, dbConn *string) {
	fs.StringVar(dbType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(dbConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
}

func fsFlags(fs *flag.FlagSet, fsType, fsConn *string) {
	fs.StringVar(fsType, "fs-type", "", "fs type (local, s3, telegram)")
	fs.StringVar(fsConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
}

func providerFlags(fs *flag.FlagSet, cfg *provider.Config) {
	fs.StringVar(&cfg.Provider, "provider", provider.Gemini, "generative provider (gemini, openai)")
	fs.StringVar(&cfg.Key, "key", "", "api key (optional, selected from the web app or the setting command otherwise)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "provider base url (optional)")
	fs.StringVar(&cfg.TextModel, "text-model", "", "model used for concepts and lyrics (optional)")
	fs.StringVar(&cfg.ImageModel, "image-model", "", "model used for cover art (optional)")
	fs.DurationVar(&cfg.Wait, "wait", 0, "minimum wait time between provider requests")
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	dbFlags(fs, &cfg.DBType, &cfg.DBConn)

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musaix %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "create or update the database schema",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return migrate.Run(ctx, cfg)
		},
	}
}

func newSettingCommand() *ffcli.Command {
	cmd := "setting"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &setting.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	dbFlags(fs, &cfg.DBType, &cfg.DBConn)
	fs.StringVar(&cfg.Provider, "provider", provider.Gemini, "provider of the key (gemini, openai)")
	fs.StringVar(&cfg.Value, "value", "", "value to set")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musaix %s [flags] <set|get|delete|list>", cmd),
		Options:    options(),
		ShortHelp:  "manage stored api keys",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("setting: action required (set, get, delete, list)")
			}
			cfg.Action = args[0]
			return setting.Run(ctx, cfg)
		},
	}
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	dbFlags(fs, &cfg.DBType, &cfg.DBConn)
	fsFlags(fs, &cfg.FSType, &cfg.FSConn)
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	providerFlags(fs, &cfg.Provider)

	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "basic auth credentials (comma separated) Example: user1:pass1,user2:pass2")
	fs.BoolVar(&cfg.Open, "open", false, "open the browser")
	fs.StringVar(&cfg.SessionSecret, "session-secret", "", "secret to sign sessions (random if empty)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", 24*time.Hour, "session duration")
	fs.BoolVar(&cfg.SecureCookie, "secure-cookie", false, "mark the session cookie as secure (serve behind https)")
	fs.DurationVar(&cfg.Timeout, "timeout", 3*time.Minute, "timeout for each generation")
	fs.IntVar(&cfg.Restore, "restore", 20, "number of stored tracks loaded into the playlist")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musaix %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "launch the studio web app",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

func newComposeCommand() *ffcli.Command {
	cmd := "compose"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &compose.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	dbFlags(fs, &cfg.DBType, &cfg.DBConn)
	fsFlags(fs, &cfg.FSType, &cfg.FSConn)
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	providerFlags(fs, &cfg.Provider)

	fs.StringVar(&cfg.Genre, "genre", "", "genre of the track")
	fs.StringVar(&cfg.Mood, "mood", "", "mood of the track")
	fs.StringVar(&cfg.Topic, "topic", "", "topic or theme of the track")
	fs.StringVar(&cfg.Input, "input", "", "csv or json with prompts (fields: genre,mood,topic)")
	fs.IntVar(&cfg.Limit, "limit", 0, "limit the number of tracks (0 means no limit)")
	fs.StringVar(&cfg.Output, "output", "", "output folder for cover art and track files (optional)")
	fs.BoolVar(&cfg.FullLyrics, "full-lyrics", false, "write the complete lyrics")
	fs.DurationVar(&cfg.Timeout, "timeout", 3*time.Minute, "timeout for each generation")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musaix %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "generate tracks from the command line",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return compose.Run(ctx, cfg)
		},
	}
}

func newExportCommand() *ffcli.Command {
	cmd := "export"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &export.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	dbFlags(fs, &cfg.DBType, &cfg.DBConn)
	fs.StringVar(&cfg.Output, "output", "tracks.csv", "output file (csv, json or yaml)")
	fs.StringVar(&cfg.Genre, "genre", "", "filter by genre")
	fs.StringVar(&cfg.Provider, "provider", "", "filter by provider")
	fs.IntVar(&cfg.Limit, "limit", 0, "limit the number of tracks (0 means no limit)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musaix %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "export stored tracks",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return export.Run(ctx, cfg)
		},
	}
}

func newRadarCommand() *ffcli.Command {
	cmd := "radar"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &radar.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	dbFlags(fs, &cfg.DBType, &cfg.DBConn)
	fs.StringVar(&cfg.ID, "id", "", "track id (latest track if empty)")
	fs.StringVar(&cfg.Output, "output", "radar.png", "output image (png, jpg, svg, pdf)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("musaix %s [flags]", cmd),
		Options:    options(),
		ShortHelp:  "render the mood chart of a track",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			return radar.Run(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
