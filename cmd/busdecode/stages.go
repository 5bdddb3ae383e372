package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/busdecode/internal/auth"
	"github.com/danmuck/busdecode/internal/catalog/dbcfile"
	"github.com/danmuck/busdecode/internal/config"
	"github.com/danmuck/busdecode/internal/formats"
	"github.com/danmuck/busdecode/internal/pipeline"
	"github.com/danmuck/busdecode/internal/server"
	"github.com/danmuck/busdecode/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func stageCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(c *cli.Context) error {
			stage, err := pipeline.ParseStage(name)
			if err != nil {
				return err
			}
			return withPipeline(c, func(ctx context.Context, p *pipeline.Pipeline) error {
				if err := p.RunStage(ctx, stage); err != nil {
					return err
				}
				return reportFailures(p.Summary())
			})
		},
	}
}

func runAll(c *cli.Context) error {
	return withPipeline(c, func(ctx context.Context, p *pipeline.Pipeline) error {
		sum, err := p.Run(ctx)
		if err != nil {
			return err
		}
		return reportFailures(sum)
	})
}

func withPipeline(c *cli.Context, fn func(ctx context.Context, p *pipeline.Pipeline) error) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.OpenDuckDB()
	if err != nil {
		return err
	}
	defer st.Close()

	p := pipeline.New(cfg, dbcfile.Parser{}, formats.Open, st)
	log.Info().Msgf("busdecode.%s run=%s data_dir=%s workers=%d", c.Command.Name, p.RunID(), cfg.Paths.DataDir, cfg.Runtime.Workers)
	return fn(c.Context, p)
}

// reportFailures turns per-file failures into a non-zero exit after every
// sibling file was processed.
func reportFailures(sum pipeline.RunSummary) error {
	var errs []error
	for _, o := range sum.Outcomes {
		if o.Status == pipeline.StatusFailed {
			errs = append(errs, fmt.Errorf("%s %s: %w", o.Stage, o.File, o.Err))
		}
	}
	return errors.Join(errs...)
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if token := c.String("api-token"); token != "" {
		cfg.Server.AuthToken = token
	}
	p := pipeline.New(cfg, dbcfile.Parser{}, formats.Open, nil)
	reg, err := p.Registry(c.Context)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	srv := server.New("busdecode-api", reg, serverOptions(cfg))
	return srv.Serve(c.Context)
}

func serverOptions(cfg config.Config) server.Options {
	opts := server.Options{
		Addr:        cfg.Server.Addr,
		CorsOrigins: cfg.Server.CorsOrigins,
		ReportDir:   cfg.Paths.ReportDir,
	}
	if cfg.Server.AuthToken != "" {
		opts.Auth = auth.StaticToken{Token: cfg.Server.AuthToken}
	}
	return opts
}
