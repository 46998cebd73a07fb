package server

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"storyweaver/pkg/ingest"
	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/utils"
)

// storyView is a story together with the elements its dataset holds.
type storyView struct {
	*schema.Story
	Elements []schema.StoryElement `json:"elements"`
}

func (s *Server) view(ctx context.Context, st *schema.Story) (storyView, error) {
	elements, err := s.elements(ctx, st.ID)
	return storyView{Story: st, Elements: elements}, err
}

// elements returns the story's accepted elements, empty when it has no
// dataset yet.
func (s *Server) elements(ctx context.Context, storyID string) ([]schema.StoryElement, error) {
	ds, err := s.Datasets.GetDataset(ctx, storyID)
	if errors.Is(err, store.ErrNotFound) {
		return []schema.StoryElement{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ds.Elements, nil
}

// GET /api/stories
func (s *Server) handleGetStories(c echo.Context) error {
	ctx := c.Request().Context()
	stories, err := s.Stories.ListStories(ctx)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed listing stories", err)
	}
	views := make([]storyView, 0, len(stories))
	for _, st := range stories {
		v, err := s.view(ctx, st)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "failed listing stories", err)
		}
		views = append(views, v)
	}
	return c.JSON(http.StatusOK, map[string]any{"stories": views})
}

// POST /api/stories
func (s *Server) handlePostStory(c echo.Context) error {
	var req schema.StoryCreate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	st, err := schema.NewStory("", req.Title, req.Content)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid story", err)
	}
	if err := s.Stories.CreateStory(c.Request().Context(), st); err != nil {
		return fail(c, http.StatusInternalServerError, "failed creating story", err)
	}
	log.Info("story created", "story_id", st.ID, "title", st.Title)
	return c.JSON(http.StatusCreated, storyView{Story: st, Elements: []schema.StoryElement{}})
}

// GET /api/stories/:id
func (s *Server) handleGetStory(c echo.Context) error {
	ctx := c.Request().Context()
	st, err := s.Stories.GetStory(ctx, c.Param("id"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "story not found", err)
	}
	v, err := s.view(ctx, st)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed loading story", err)
	}
	return c.JSON(http.StatusOK, v)
}

// DELETE /api/stories/:id removes the story, its dataset and its passages.
func (s *Server) handleDeleteStory(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if err := s.Stories.DeleteStory(ctx, id); err != nil {
		return fail(c, http.StatusInternalServerError, "story not found", err)
	}
	if err := s.Datasets.DeleteDataset(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail(c, http.StatusInternalServerError, "failed deleting story logic", err)
	}
	if s.Index != nil {
		s.Index.Delete(id)
	}
	log.Info("story deleted", "story_id", id)
	return c.NoContent(http.StatusNoContent)
}

// GET /api/stories/:id/messages
func (s *Server) handleGetMessages(c echo.Context) error {
	st, err := s.Stories.GetStory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "story not found", err)
	}
	return c.JSON(http.StatusOK, st.Messages)
}

// POST /api/stories/:id/messages stores the message and, for user messages,
// the bot's reply. The response is the stored user message.
func (s *Server) handlePostMessage(c echo.Context) error {
	var req schema.MessageCreate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if err := req.Validate(); err != nil {
		return fail(c, http.StatusBadRequest, "invalid message", err)
	}

	ctx := c.Request().Context()
	s.messages.Lock()
	defer s.messages.Unlock()

	st, err := s.Stories.GetStory(ctx, c.Param("id"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "story not found", err)
	}
	msg := schema.NewMessage(st.ID, req.Sender, req.Content)
	st.Append(msg)

	if req.Sender == schema.SenderUser {
		elements, err := s.elements(ctx, st.ID)
		if err != nil {
			return fail(c, http.StatusInternalServerError, "failed loading story logic", err)
		}
		st.Append(schema.NewMessage(st.ID, schema.SenderBot, s.Responder.Respond(st, elements, req.Content)))
	}

	if err := s.Stories.UpdateStory(ctx, st); err != nil {
		return fail(c, http.StatusInternalServerError, "failed saving message", err)
	}
	return c.JSON(http.StatusCreated, msg)
}

// POST /api/stories/:id/elements adds an element after checking it against
// the story logic. A contradiction is a 409 listing what conflicts.
func (s *Server) handlePostElement(c echo.Context) error {
	var req schema.ElementCreate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}

	ctx := c.Request().Context()
	st, err := s.Stories.GetStory(ctx, c.Param("id"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "story not found", err)
	}
	e, err := req.Element()
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid element", err)
	}

	report, err := s.Ingestor.Propose(ctx, st.ID, st.Title, e)
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed adding element", err)
	}
	if len(report.Rejected) > 0 {
		return c.JSON(http.StatusConflict, utils.ErrJSON("element contradicts the story logic", report.Rejected[0].Contradictions...))
	}
	return c.JSON(http.StatusCreated, report.Accepted[0])
}

// GET /api/stories/:id/dataset
func (s *Server) handleGetDataset(c echo.Context) error {
	ds, err := s.Datasets.GetDataset(c.Request().Context(), c.Param("id"))
	if err != nil {
		return fail(c, http.StatusInternalServerError, "story logic not found", err)
	}
	return c.JSON(http.StatusOK, ds)
}

// GET /api/stories/:id/logic returns the rendered dataset as plain text.
func (s *Server) handleGetLogic(c echo.Context) error {
	ds, err := s.Datasets.GetDataset(c.Request().Context(), c.Param("id"))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fail(c, http.StatusInternalServerError, "failed loading story logic", err)
	}
	return c.String(http.StatusOK, storylogic.Render(ds))
}

type contentReq struct {
	Title string        `json:"title"`
	Pages []schema.Page `json:"pages"`
}

// POST /api/stories/:id/content runs new pages through extraction and the
// consistency check, then indexes them.
func (s *Server) handlePostContent(c echo.Context) error {
	var req contentReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if len(req.Pages) == 0 {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("invalid request", "pages: must have at least one page"))
	}

	ctx := c.Request().Context()
	id := strings.TrimSpace(c.Param("id"))
	title := req.Title
	if st, err := s.Stories.GetStory(ctx, id); err == nil {
		title = cmp.Or(title, st.Title)
	}

	report, err := s.Ingestor.Update(ctx, ingest.Content{StoryID: id, Title: title, Pages: req.Pages, Kind: ingest.KindPage})
	if err != nil {
		return fail(c, http.StatusInternalServerError, "failed updating story", err)
	}
	return c.JSON(http.StatusOK, schema.OK("Story content updated", report))
}
