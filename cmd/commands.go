package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"document-qa/internal/chromemdb"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
	"document-qa/internal/server"
	"document-qa/internal/session"
	"document-qa/internal/tui"
)

func (a *app) serve(ctx context.Context, cmd *cli.Command) error {
	if addr := cmd.String("addr"); addr != "" {
		a.cfg.Server.Addr = addr
	}

	engine, err := session.NewEngine(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if cmd.Bool("reset") {
		if err := engine.ResetRecords(ctx); err != nil {
			return err
		}
	}

	sessions := session.NewManager(engine)
	defer sessions.Close()

	srv, err := server.New(a.cfg, sessions)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func (a *app) chat(ctx context.Context, cmd *cli.Command) error {
	engine, err := session.NewEngine(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	sessions := session.NewManager(engine)
	defer sessions.Close()

	sess, err := sessions.New()
	if err != nil {
		return err
	}
	uploads, err := readFiles(cmd.StringSlice("file"))
	if err != nil {
		return err
	}
	res, err := sess.Process(ctx, cmd.String("api-key"), uploads)
	if err != nil {
		return err
	}

	summary := fmt.Sprintf("Processed %d chunks from %d files", res.Chunks, res.Files)
	model := tui.New(ctx, sess, a.cfg.Server.Title, summary, a.cfg.RAG.SourceDisplay)
	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (a *app) ask(ctx context.Context, cmd *cli.Command) error {
	engine, err := session.NewEngine(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	sessions := session.NewManager(engine)
	defer sessions.Close()

	sess, err := sessions.New()
	if err != nil {
		return err
	}

	if path := cmd.String("index"); path != "" {
		if err := a.useExportedIndex(ctx, engine, sess, cmd.String("api-key"), path); err != nil {
			return err
		}
	} else {
		uploads, err := readFiles(cmd.StringSlice("file"))
		if err != nil {
			return err
		}
		if _, err := sess.Process(ctx, cmd.String("api-key"), uploads); err != nil {
			return err
		}
	}

	query := cmd.String("query")
	response, err := sess.Ask(ctx, query)
	if err != nil {
		return err
	}
	printResponse(response, a.cfg.RAG.SourceDisplay)
	return nil
}

func (a *app) useExportedIndex(ctx context.Context, engine *session.Engine, sess *session.Session, apiKey, path string) error {
	if apiKey == "" {
		return session.ErrMissingAPIKey
	}
	llm, err := engine.NewModel(ctx, apiKey)
	if err != nil {
		return err
	}

	store, err := chromemdb.NewVectorDBManager("", indexName, a.cfg.VectorStore.Compress, a.cfg.RAG.EncryptionKey, embedFunc(engine))
	if err != nil {
		return err
	}
	if err := store.Import(ctx, path); err != nil {
		return err
	}
	count, _ := store.Count(ctx)
	log.Info().Str("file", path).Int("chunks", count).Msg("Imported index")

	retriever := rag.NewRetriever(store, engine.Embedder, &a.cfg.RAG)
	sess.UsePipeline(rag.NewPipeline(retriever, llm, &a.cfg.LLM), store)
	return nil
}

func (a *app) index(ctx context.Context, cmd *cli.Command) error {
	engine, err := session.NewEngine(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	uploads, err := readFiles(cmd.StringSlice("file"))
	if err != nil {
		return err
	}
	units, err := engine.Loader.Load(ctx, uploads)
	if err != nil {
		return err
	}

	if cmd.Bool("dry-run") {
		chunks, err := engine.Splitter.Split(units)
		if err != nil {
			return err
		}
		log.Info().Int("chunks", len(chunks)).Msg("Parsed content")
		helper.PrettyPrint(chunks)
		return nil
	}

	store, err := chromemdb.NewVectorDBManager("", indexName, a.cfg.VectorStore.Compress, a.cfg.RAG.EncryptionKey, embedFunc(engine))
	if err != nil {
		return err
	}
	n, err := rag.NewIndexer(engine.Splitter, engine.Embedder, store, a.cfg.EmbedLLM.BatchSize).Build(ctx, units)
	if err != nil {
		return err
	}

	export := cmd.String("export")
	if export == "" {
		log.Info().Int("chunks", n).Msg("Index built; pass --export to keep it")
		return nil
	}
	if err := helper.CreateFolder(filepath.Dir(export)); err != nil {
		return err
	}
	if err := store.Export(ctx, export); err != nil {
		return err
	}
	log.Info().Int("chunks", n).Str("file", export).Msg("Index exported")
	return nil
}

func embedFunc(engine *session.Engine) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		v, err := engine.Embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		return embedding.NormalizeVector(v), nil
	}
}

func readFiles(paths []string) ([]parser.Upload, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one --file is required")
	}
	uploads := make([]parser.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		uploads = append(uploads, parser.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}

func printResponse(response *models.PromptResponse, sourceDisplay int) {
	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Query)

	log.Info().Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	for _, s := range response.Sources[:min(sourceDisplay, len(response.Sources))] {
		fmt.Printf("%s, page %d\n%s\n\n", s.Source, s.Page, s.Content)
	}

	log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", response.Answer)
}
