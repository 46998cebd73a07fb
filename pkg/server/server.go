package server

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"storyweaver/pkg/chat"
	"storyweaver/pkg/ingest"
	"storyweaver/pkg/queue"
	"storyweaver/pkg/rag"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/vector"
)

// Deps are the services behind the HTTP surface.
type Deps struct {
	Stories    store.StoryStore
	Datasets   store.DatasetStore
	Ingestor   *ingest.Ingestor
	Index      *vector.Index
	Chatbot    *rag.Chatbot
	Responder  *chat.Responder
	Recognizer storylogic.Recognizer
}

type Server struct {
	Deps
	Echo *echo.Echo
	Ctx  context.Context

	// StaticDir holds the frontend; index.html is served at "/".
	StaticDir string

	queue *queue.Queue
	// messages serializes read-modify-write of a story's chat history.
	messages sync.Mutex
}

func NewServer(ctx context.Context, deps Deps, origins []string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: origins}))
	e.Use(noCacheStatic)

	s := &Server{
		Deps:      deps,
		Echo:      e,
		Ctx:       ctx,
		StaticDir: "static",
	}

	s.queue = queue.New(ctx, s.IngestBook, queue.DefaultSize)
	s.queue.Start()

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)
	s.Echo.Static("/static", s.StaticDir)

	api := s.Echo.Group("/api")
	api.GET("/health", s.handleGetHealth)

	// stories and their chat
	api.GET("/stories", s.handleGetStories)
	api.POST("/stories", s.handlePostStory)
	api.GET("/stories/:id", s.handleGetStory)
	api.DELETE("/stories/:id", s.handleDeleteStory)
	api.GET("/stories/:id/messages", s.handleGetMessages)
	api.POST("/stories/:id/messages", s.handlePostMessage)
	api.POST("/stories/:id/elements", s.handlePostElement)
	api.GET("/stories/:id/dataset", s.handleGetDataset)
	api.GET("/stories/:id/logic", s.handleGetLogic)
	api.POST("/stories/:id/content", s.handlePostContent)

	// assistant
	api.POST("/chat", s.handlePostChat)
	api.POST("/search", s.handlePostSearch)
	api.POST("/propose-expansion", s.handlePostProposeExpansion)
	api.POST("/ingest", s.handlePostIngest)
	api.POST("/analyze", s.handlePostAnalyze)
}

func (s *Server) Start(addr string) error {
	log.Info("server listening", "addr", addr)
	return s.Echo.Start(addr)
}

// Shutdown stops accepting requests, then waits for queued ingestions until
// ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down server")
	if err := s.Echo.Shutdown(ctx); err != nil {
		return err
	}
	return s.queue.Stop(ctx)
}

func noCacheStatic(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if strings.HasPrefix(c.Request().URL.Path, "/static/") {
			h := c.Response().Header()
			h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		return next(c)
	}
}

func cancelled(c echo.Context) bool {
	select {
	case <-c.Request().Context().Done():
		return true
	default:
		return false
	}
}
