package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/nextremer/minarai-client-go/pkg/minarai"
)

type contextKey int

const contextKeyConfig contextKey = iota

func getConfig(ctx *cli.Context) *Config {
	return ctx.Context.Value(contextKeyConfig).(*Config)
}

func setupLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func prepareApp(ctx *cli.Context) error {
	logger, err := setupLogger(ctx.String("log-format"), ctx.String("log-level"))
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := loadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.applyFlags(ctx)
	cfg.Options.Logger = logger
	ctx.Context = context.WithValue(ctx.Context, contextKeyConfig, cfg)
	return nil
}

func main() {
	app := &cli.App{
		Name:  "minarai",
		Usage: "Talk to a minarai socketio-connector from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"MINARAI_CONFIG"},
			},
			&cli.StringFlag{Name: "application-id", EnvVars: []string{"MINARAI_APPLICATION_ID"}},
			&cli.StringFlag{Name: "application-secret", EnvVars: []string{"MINARAI_APPLICATION_SECRET"}},
			&cli.StringFlag{Name: "client-id", EnvVars: []string{"MINARAI_CLIENT_ID"}},
			&cli.StringFlag{Name: "user-id", EnvVars: []string{"MINARAI_USER_ID"}},
			&cli.StringFlag{
				Name:    "device-id",
				Usage:   "Device id; a random one is generated when unset",
				EnvVars: []string{"MINARAI_DEVICE_ID"},
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Channel root URL",
				Value:   minarai.DefaultChannelRootURL,
				EnvVars: []string{"MINARAI_URL"},
			},
			&cli.StringFlag{
				Name:    "api-version",
				Value:   minarai.DefaultAPIVersion,
				EnvVars: []string{"MINARAI_API_VERSION"},
			},
			&cli.StringFlag{
				Name:    "lang",
				Value:   minarai.DefaultLang,
				EnvVars: []string{"MINARAI_LANG"},
			},
			&cli.BoolFlag{
				Name:    "image-via-header",
				Usage:   "Send credentials as headers when fetching images",
				EnvVars: []string{"MINARAI_IMAGE_VIA_HEADER"},
			},
			&cli.BoolFlag{
				Name:    "tls-skip-verify",
				Usage:   "Skip TLS certificate verification (e.g. self-signed)",
				EnvVars: []string{"MINARAI_TLS_SKIP_VERIFY"},
			},
			&cli.StringFlag{Name: "log-format", Value: "text", Usage: "text or json"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Before: prepareApp,
		Commands: []*cli.Command{
			chatCommand,
			uploadCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
