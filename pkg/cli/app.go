package cli

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
	glog "github.com/labstack/gommon/log"

	"storyweaver/pkg/chat"
	"storyweaver/pkg/config"
	"storyweaver/pkg/inference"
	"storyweaver/pkg/ingest"
	"storyweaver/pkg/rag"
	"storyweaver/pkg/server"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/vector"
)

type app struct {
	store store.Store
	srv   *server.Server
}

// newApp wires every service from c. Without a model provider the server
// runs fully offline: hashed embeddings, heuristic recognition and
// retrieval-only answers.
func newApp(ctx context.Context, c config.Config) (*app, error) {
	var (
		inf inference.Inferencer
		emb inference.Embedder
	)
	if c.Provider != "" {
		var err error
		inf, emb, err = inference.New(ctx, inference.Provider(c.Provider), inference.Options{
			APIKey:         c.APIKey,
			Model:          c.Model,
			BaseURL:        c.BaseURL,
			EmbeddingModel: c.EmbeddingModel,
		})
		if err != nil {
			return nil, err
		}
		log.Info("language model configured", "provider", c.Provider, "model", c.Model)
	}
	if emb == nil {
		emb = inference.NewHashEmbedder(c.EmbeddingDims)
		log.Info("using offline hashed embeddings", "dims", c.EmbeddingDims)
	}

	var rec storylogic.Recognizer = storylogic.NewHeuristicRecognizer()
	if c.NERMode == config.NERModel {
		rec = storylogic.NewModelRecognizer(inf)
	}

	st, err := store.Open(c.StoreDriver, c.StorePath)
	if err != nil {
		return nil, err
	}
	log.Info("store opened", "driver", c.StoreDriver, "path", c.StorePath)

	idx := vector.New(emb, c.SearchCacheTTL)
	x := storylogic.NewExtractor(rec)
	in := ingest.New(st, x, idx)

	// Background ingestions outlive the signal; Shutdown bounds how long they get.
	srv := server.NewServer(context.WithoutCancel(ctx), server.Deps{
		Stories:  st,
		Datasets: st,
		Ingestor: in,
		Index:    idx,
		Chatbot: &rag.Chatbot{
			Inferencer:    inf,
			Retriever:     idx,
			Datasets:      st,
			Extractor:     x,
			Ingestor:      in,
			ContextTokens: c.ContextTokens,
		},
		Responder:  chat.NewResponder(nil),
		Recognizer: rec,
	}, c.CORSOrigins)
	srv.Echo.Logger.SetLevel(echoLevel(c.LogLevel))

	return &app{store: st, srv: srv}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error("failed closing store", "error", err)
	}
}

func echoLevel(level string) glog.Lvl {
	switch strings.ToLower(level) {
	case "debug":
		return glog.DEBUG
	case "warn":
		return glog.WARN
	case "error", "fatal":
		return glog.ERROR
	default:
		return glog.INFO
	}
}
