package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/busdecode/internal/config"
	"github.com/danmuck/busdecode/internal/observability"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const defaultConfigPath = "busdecode.toml"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "busdecode: .env not loaded: %v\n", err)
	}
	observability.InitLogger("busdecode")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Error().Msgf("busdecode err=%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "busdecode",
		Usage: "decode and normalize vehicle bus logs into analysis tables",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "TOML config path",
				Value:   defaultConfigPath,
				EnvVars: []string{"BUSDECODE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "override paths.data_dir and every stage dir derived from it",
				EnvVars: []string{"BUSDECODE_DATA_DIR"},
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "override runtime.workers",
				EnvVars: []string{"BUSDECODE_WORKERS"},
			},
		},
		Commands: []*cli.Command{
			stageCommand("extract", "load catalogs and write signal metadata and enum maps"),
			stageCommand("decode", "decode raw frame logs against every catalog"),
			stageCommand("downsample", "resample decoded tables onto the fixed period grid"),
			stageCommand("clean", "drop low quality signals and label enum columns"),
			stageCommand("merge", "concatenate processed tables per source catalog"),
			stageCommand("validate", "write schema diff, quality and allowlist reports"),
			{
				Name:   "run",
				Usage:  "run every stage in order",
				Action: runAll,
			},
			{
				Name:  "serve",
				Usage: "serve the signal registry and reports over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "override server.addr"},
					&cli.StringFlag{
						Name:    "api-token",
						Usage:   "override server.auth_token",
						EnvVars: []string{"BUSDECODE_API_TOKEN"},
					},
				},
				Action: serve,
			},
			{
				Name:   "check-config",
				Usage:  "load and validate the config, then print the effective values",
				Action: checkConfig,
			},
		},
	}
}

// loadConfig reads --config, falling back to defaults when the default
// path does not exist.
func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.String("config")
	var cfg config.Config
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !c.IsSet("config") {
		log.Warn().Msgf("busdecode.loadConfig path=%s missing, using defaults", path)
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg = cfg.WithDataDir(dir)
	}
	if c.IsSet("workers") {
		cfg.Runtime.Workers = c.Int("workers")
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func checkConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := config.Render(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, out)
	return nil
}
