package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"storyweaver/pkg/ingest"
	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/utils"
	"storyweaver/pkg/vector"
)

const version = "1.0.0"

// GET / serves the frontend when one is installed.
func (s *Server) handleGetRoot(c echo.Context) error {
	index := filepath.Join(s.StaticDir, "index.html")
	if utils.Exists(index) {
		return c.File(index)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "StoryWeaver AI API",
		"version": version,
	})
}

// GET /api/health
func (s *Server) handleGetHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version,
	})
}

// POST /api/chat answers from the story when story_id is set.
func (s *Server) handlePostChat(c echo.Context) error {
	var q schema.UserQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if err := q.Validate(); err != nil {
		return fail(c, http.StatusBadRequest, "invalid query", err)
	}

	resp := schema.ChatResponse{
		Response:      fmt.Sprintf("I understand you're asking about: %s", q.Message),
		IsPermissible: true,
		Reasoning:     "Query is within story context",
		Suggestions:   []string{"Consider adding more details", "Explore character motivations"},
	}
	if q.StoryID != "" {
		var err error
		resp, err = s.Chatbot.QueryStory(c.Request().Context(), q.StoryID, q.Message)
		if err != nil {
			return fail(c, http.StatusBadGateway, "failed answering question", err)
		}
	}
	return c.JSON(http.StatusOK, schema.OK("Chat response generated successfully", resp))
}

// POST /api/search looks in one story, or across all of them.
func (s *Server) handlePostSearch(c echo.Context) error {
	var q schema.SearchQuery
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if err := q.Validate(); err != nil {
		return fail(c, http.StatusBadRequest, "invalid search", err)
	}

	ctx := c.Request().Context()
	var (
		res vector.QueryResult
		err error
	)
	if q.StoryID != "" {
		res, err = s.Index.Query(ctx, q.StoryID, q.Query, q.MaxResults)
	} else {
		res, err = s.Index.SearchAll(ctx, q.Query, q.MaxResults)
	}
	if err != nil {
		return fail(c, http.StatusBadGateway, "search failed", err)
	}
	return c.JSON(http.StatusOK, schema.OK(fmt.Sprintf("Found %d results", len(res.Results)), res))
}

// POST /api/propose-expansion
func (s *Server) handlePostProposeExpansion(c echo.Context) error {
	var p schema.ExpansionProposal
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	d, err := s.Chatbot.ProposeExpansion(c.Request().Context(), p)
	if err != nil {
		return fail(c, http.StatusBadGateway, "failed judging proposal", err)
	}
	return c.JSON(http.StatusOK, schema.OK("Expansion proposal submitted successfully", d))
}

type analyzeReq struct {
	Text string `json:"text"`
}

// POST /api/analyze buckets a passage into who/what/when/where.
func (s *Server) handlePostAnalyze(c echo.Context) error {
	var req analyzeReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("invalid request", "text: cannot be empty"))
	}
	res, err := storylogic.Extract5W1H(c.Request().Context(), s.Recognizer, req.Text)
	if err != nil {
		return fail(c, http.StatusBadGateway, "analysis failed", err)
	}
	return c.JSON(http.StatusOK, schema.OK("Passage analyzed", res))
}

// POST /api/ingest accepts a book. Clients asking for text/event-stream
// follow the ingestion live; everyone else gets 202 and the book waits in
// the ingestion queue.
func (s *Server) handlePostIngest(c echo.Context) error {
	book, err := schema.DecodeBook(c.Request().Body)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid book", err)
	}
	accepted := map[string]any{"story_id": book.StoryID, "pages_count": len(book.Pages)}

	if !strings.Contains(c.Request().Header.Get(echo.HeaderAccept), "text/event-stream") {
		if _, _, err := s.queue.Add(book); err != nil {
			return fail(c, http.StatusServiceUnavailable, "ingestion queue unavailable", err)
		}
		return c.JSON(http.StatusAccepted, schema.OK("Book ingestion started", accepted))
	}

	w, err := newSSEWriter(c)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "streaming unavailable", err)
	}
	defer w.Close()

	_ = w.Event("started", accepted)
	report, err := s.IngestBook(c.Request().Context(), book)
	if cancelled(c) {
		log.Warn("ingestion stream closed by client", "story_id", book.StoryID)
		return nil
	}
	if err != nil {
		return w.Event("error", utils.ErrJSON("ingestion failed", err.Error()))
	}
	return w.Event("done", report)
}

// IngestBook stores a book's story record when it is new, then runs its
// pages and declared elements through the Ingestor.
func (s *Server) IngestBook(ctx context.Context, b schema.Book) (ingest.Report, error) {
	if err := s.ensureStory(ctx, b); err != nil {
		return ingest.Report{}, err
	}
	report, err := s.Ingestor.Book(ctx, b)
	if err != nil {
		return report, fmt.Errorf("ingest %s: %w", b.StoryID, err)
	}
	log.Info("book ingested", "story_id", b.StoryID, "pages", len(b.Pages), "elements", len(report.Accepted), "version", report.Version)
	return report, nil
}

func (s *Server) ensureStory(ctx context.Context, b schema.Book) error {
	_, err := s.Stories.GetStory(ctx, b.StoryID)
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	st, err := schema.NewStory(b.StoryID, b.Title, b.Pages[0].Text)
	if err != nil {
		return err
	}
	st.Author = b.Author
	if err := s.Stories.CreateStory(ctx, st); err != nil && !errors.Is(err, store.ErrExists) {
		return err
	}
	return nil
}
