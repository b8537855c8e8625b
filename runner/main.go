package runner

// This file contains the default command-line entry point a suite
// binary delegates to, including child-mode dispatch and flag/config
// resolution.

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/crucible-run/crucible/config"
	"github.com/crucible-run/crucible/executor"
	"github.com/crucible-run/crucible/model"
)

const appName = "crucible"

// Main is the default entry point for a suite binary. When the process
// was spawned as a test child it runs just that test and exits;
// otherwise it parses flags, runs the whole suite and exits with the
// status encoding the verdict. VerdictError's -1 is truncated by the
// operating system to its low 8 bits, so shells observe 255.
func Main(suite *model.Suite) {
	if idx, ok := executor.ChildIndex(); ok {
		os.Exit(executor.RunChild(suite, idx))
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	logger := log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339Nano,
	})

	app := &cli.App{
		Name:  appName,
		Usage: "run a declared test suite with per-test process isolation",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose (debug) logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable ANSI colors in the result stream",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Default per-test timeout (overrides config)",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "Completion poll interval of the timeout monitor",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to the runner configuration file",
				Value: config.DefaultPath,
			},
		},
		Action: func(ctx *cli.Context) error {
			opts, err := resolveOptions(ctx, &logger)
			if err != nil {
				return err
			}
			code := New(suite, opts).Run().ExitCode()
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("Suite runner failed")
	}
}

// resolveOptions merges the configuration file, flags and environment
// into runner Options. Flags win over the file; the file wins over
// built-in defaults.
func resolveOptions(ctx *cli.Context, logger *zerolog.Logger) (Options, error) {
	opts := Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}

	path := ctx.String("config")
	cfg, err := loadConfigFile(path, ctx.IsSet("config"))
	if err != nil {
		return opts, err
	}
	if cfg != nil {
		logger.Debug().Str("path", path).Msg("Loaded configuration file")

		timeout, err := cfg.TimeoutDuration()
		if err != nil {
			return opts, err
		}
		opts.DefaultTimeout = timeout

		poll, err := cfg.PollIntervalDuration()
		if err != nil {
			return opts, err
		}
		opts.PollInterval = poll
	}

	if ctx.Duration("timeout") > 0 {
		opts.DefaultTimeout = ctx.Duration("timeout")
	}
	if ctx.Duration("poll-interval") > 0 {
		opts.PollInterval = ctx.Duration("poll-interval")
	}

	if ctx.Bool("verbose") || (cfg != nil && cfg.Verbose) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	opts.Color = isatty.IsTerminal(os.Stdout.Fd())
	if cfg != nil && cfg.Color != nil {
		opts.Color = *cfg.Color
	}
	if ctx.Bool("no-color") {
		opts.Color = false
	}

	return opts, nil
}

// loadConfigFile loads the configuration file at path. A missing file
// is an error only when the path was given explicitly; any other stat
// failure (a permission problem, a non-directory path component)
// surfaces regardless, so a broken default config is never silently
// skipped.
func loadConfigFile(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return nil, fmt.Errorf("config file %s: %w", path, err)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}
