package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"document-qa/internal/config"
)

const (
	configFilePath = "./configs/config.yaml"
	indexName      = "docqa-index"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	a := &app{}
	fileFlag := func() cli.Flag {
		return &cli.StringSliceFlag{
			Name:  "file",
			Usage: "document to load (.pdf, .docx, .pptx), repeatable",
		}
	}
	apiKeyFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "api-key",
			Usage:   "API key of the generative model",
			Sources: cli.EnvVars("DOCQA_API_KEY"),
		}
	}

	cmd := &cli.Command{
		Name:  "document-qa",
		Usage: "Chat with your PDF, DOCX and PPTX documents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML config file",
				Value: configFilePath,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override log.level from the config",
			},
		},
		Before: a.before,
		Action: a.serve,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the browser chat",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides server.addr"},
					&cli.BoolFlag{Name: "reset", Usage: "drop indexes left in postgres by earlier runs"},
				},
				Action: a.serve,
			},
			{
				Name:   "chat",
				Usage:  "Chat in the terminal over the given documents",
				Flags:  []cli.Flag{fileFlag(), apiKeyFlag()},
				Action: a.chat,
			},
			{
				Name:  "ask",
				Usage: "Answer one question and print the answer with its sources",
				Flags: []cli.Flag{
					fileFlag(),
					apiKeyFlag(),
					&cli.StringFlag{Name: "index", Usage: "exported index file to query instead of --file"},
					&cli.StringFlag{Name: "query", Usage: "question to answer", Required: true},
				},
				Action: a.ask,
			},
			{
				Name:  "index",
				Usage: "Chunk and embed documents, optionally exporting the index",
				Flags: []cli.Flag{
					fileFlag(),
					&cli.BoolFlag{Name: "dry-run", Usage: "print the chunks without embedding them"},
					&cli.StringFlag{Name: "export", Usage: "write the index to an encrypted file"},
				},
				Action: a.index,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

type app struct {
	cfg *config.Config
}

func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.LoadConfig(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	setupLogger(&cfg.Log)
	a.cfg = cfg
	return ctx, nil
}

func setupLogger(cfg *config.LogConfig) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
}
