package main

import (
	"os"

	"github.com/danmuck/busdecode/internal/config"
	"github.com/danmuck/busdecode/internal/observability"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	observability.InitLogger("configgen")
	app := &cli.App{
		Name:  "configgen",
		Usage: "write or validate busdecode config files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "output", Usage: "output path for config template", Value: "busdecode.toml"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite existing config file"},
			&cli.BoolFlag{Name: "validate", Usage: "validate an existing config file"},
			&cli.StringFlag{Name: "input", Usage: "config path for validation", Value: "busdecode.toml"},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("validate") {
				cfg, err := config.Load(c.String("input"))
				if err != nil {
					return err
				}
				log.Info().Msgf("configgen validated path=%s data_dir=%s workers=%d", c.String("input"), cfg.Paths.DataDir, cfg.Runtime.Workers)
				return nil
			}
			if err := config.WriteTemplate(c.String("output"), c.Bool("force")); err != nil {
				return err
			}
			log.Info().Msgf("configgen wrote template path=%s", c.String("output"))
			return nil
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Error().Msgf("configgen err=%v", err)
		os.Exit(1)
	}
}
