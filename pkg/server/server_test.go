package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"storyweaver/pkg/chat"
	"storyweaver/pkg/inference"
	"storyweaver/pkg/ingest"
	"storyweaver/pkg/rag"
	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/vector"
)

type ServerSuite struct {
	suite.Suite
	srv   *Server
	store *store.MemoryStore
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	st := store.NewMemoryStore()
	idx := vector.New(inference.NewHashEmbedder(1024), time.Minute)
	rec := storylogic.NewHeuristicRecognizer()
	x := storylogic.NewExtractor(rec)
	in := ingest.New(st, x, idx)

	s.store = st
	s.srv = NewServer(context.Background(), Deps{
		Stories:    st,
		Datasets:   st,
		Ingestor:   in,
		Index:      idx,
		Chatbot:    &rag.Chatbot{Retriever: idx, Datasets: st, Extractor: x, Ingestor: in, CountTokens: func(s string) int { return len(strings.Fields(s)) }},
		Responder:  chat.NewResponder(rand.NewPCG(1, 1)),
		Recognizer: rec,
	}, nil)
	s.srv.StaticDir = s.T().TempDir()
}

func (s *ServerSuite) TearDownTest() {
	s.NoError(s.srv.queue.Stop(context.Background()))
}

func (s *ServerSuite) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *ServerSuite) createStory(title string) storyView {
	rec := s.do(http.MethodPost, "/api/stories", `{"title": "`+title+`", "content": "Luna walked into the Garden."}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var v storyView
	s.decode(rec, &v)
	return v
}

const lunaBook = `{
	"title": "Luna's Garden",
	"author": "A. Writer",
	"pages": [
		{"page_number": 1, "text": "Luna walked into the Garden."},
		{"page_number": 2, "text": "Luna and Max played in the Garden."}
	]
}`

func (s *ServerSuite) TestHealthAndRoot() {
	rec := s.do(http.MethodGet, "/api/health", "")
	s.Equal(http.StatusOK, rec.Code)
	var health map[string]string
	s.decode(rec, &health)
	s.Equal("healthy", health["status"])

	rec = s.do(http.MethodGet, "/", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "StoryWeaver AI API")
}

func (s *ServerSuite) TestStoryLifecycle() {
	v := s.createStory("Moon Garden")
	s.NotEmpty(v.ID)
	s.Empty(v.Elements)

	rec := s.do(http.MethodGet, "/api/stories/"+v.ID, "")
	s.Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/stories", "")
	var list struct {
		Stories []storyView `json:"stories"`
	}
	s.decode(rec, &list)
	s.Len(list.Stories, 1)

	rec = s.do(http.MethodDelete, "/api/stories/"+v.ID, "")
	s.Equal(http.StatusNoContent, rec.Code)
	rec = s.do(http.MethodGet, "/api/stories/"+v.ID, "")
	s.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodDelete, "/api/stories/"+v.ID, "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestCreateStoryValidation() {
	rec := s.do(http.MethodPost, "/api/stories", `{"title": "   "}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "title: cannot be empty")

	rec = s.do(http.MethodPost, "/api/stories", `{"title": `)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestMessagesGetBotReply() {
	v := s.createStory("Moon Garden")

	rec := s.do(http.MethodPost, "/api/stories/"+v.ID+"/messages", `{"content": "Hello!"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var msg schema.Message
	s.decode(rec, &msg)
	s.Equal(schema.SenderUser, msg.Sender)

	rec = s.do(http.MethodPost, "/api/stories/"+v.ID+"/messages", `{"content": "Noted.", "sender": "system"}`)
	s.Require().Equal(http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, "/api/stories/"+v.ID+"/messages", "")
	var msgs []schema.Message
	s.decode(rec, &msgs)
	s.Require().Len(msgs, 3, "system messages get no reply")
	s.Equal(schema.SenderBot, msgs[1].Sender)
	s.Contains(msgs[1].Content, "Hello! I'm here to help you explore 'Moon Garden'.")

	rec = s.do(http.MethodPost, "/api/stories/"+v.ID+"/messages", `{"content": "hi", "sender": "narrator"}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/stories/missing/messages", `{"content": "hi"}`)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestElementsAreChecked() {
	v := s.createStory("Moon Garden")
	path := "/api/stories/" + v.ID + "/elements"

	rec := s.do(http.MethodPost, path, `{"name": "Luna", "type": "Character", "description": "A cat.", "attributes": {"species": "cat"}}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var e schema.StoryElement
	s.decode(rec, &e)
	s.Equal("char_luna", e.ID)
	s.Equal(1, e.SourcePage)

	rec = s.do(http.MethodPost, path, `{"name": "Luna", "type": "character", "attributes": {"species": "dog"}}`)
	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), "contradicts")

	rec = s.do(http.MethodPost, path, `{"name": "Luna", "type": "spaceship"}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/stories/"+v.ID+"/dataset", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var ds schema.StoryLogicDataset
	s.decode(rec, &ds)
	s.Equal(2, ds.Version)
	s.Equal("Moon Garden", ds.Title)

	rec = s.do(http.MethodGet, "/api/stories/"+v.ID+"/logic", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("Title: Moon Garden\n\n\nCHARACTERS:\n- Luna: A cat.\n", rec.Body.String())
}

func (s *ServerSuite) TestLogicWithoutDataset() {
	rec := s.do(http.MethodGet, "/api/stories/nothing/logic", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(storylogic.NoStoryLogic, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/stories/nothing/dataset", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestContentUpdatesDatasetAndIndex() {
	v := s.createStory("Moon Garden")

	rec := s.do(http.MethodPost, "/api/stories/"+v.ID+"/content", `{"pages": [{"page_number": 1, "text": "Luna walked into the Garden."}]}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Success bool          `json:"success"`
		Data    ingest.Report `json:"data"`
	}
	s.decode(rec, &resp)
	s.True(resp.Success)
	s.Equal(3, resp.Data.Version)
	s.Equal(1, resp.Data.Indexed)

	rec = s.do(http.MethodPost, "/api/search", `{"query": "Luna Garden", "story_id": "`+v.ID+`"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var search struct {
		Message string             `json:"message"`
		Data    vector.QueryResult `json:"data"`
	}
	s.decode(rec, &search)
	s.Equal("Found 1 results", search.Message)
	s.Equal("Luna walked into the Garden.", search.Data.Results[0].Text)

	rec = s.do(http.MethodPost, "/api/stories/"+v.ID+"/content", `{"pages": []}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/stories/"+v.ID+"/content", `{"pages": [{"page_number": 0, "text": "Luna."}]}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestSearchValidation() {
	rec := s.do(http.MethodPost, "/api/search", `{"query": "  "}`)
	s.Equal(http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/search", `{"query": "Luna", "max_results": 101}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/search", `{"query": "Luna"}`)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Found 0 results")
}

func (s *ServerSuite) TestChat() {
	rec := s.do(http.MethodPost, "/api/chat", `{"message": "What is a seed?"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		Data schema.ChatResponse `json:"data"`
	}
	s.decode(rec, &resp)
	s.Equal("I understand you're asking about: What is a seed?", resp.Data.Response)
	s.True(resp.Data.IsPermissible)

	rec = s.do(http.MethodPost, "/api/ingest", lunaBook, echo.HeaderAccept, "text/event-stream")
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodPost, "/api/chat", `{"message": "Luna Garden", "story_id": "luna's_garden"}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.decode(rec, &resp)
	s.True(strings.HasPrefix(resp.Data.Response, "Here is what the story says: "), resp.Data.Response)

	rec = s.do(http.MethodPost, "/api/chat", `{"message": ""}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestProposeExpansion() {
	rec := s.do(http.MethodPost, "/api/propose-expansion", `{"story_id": "nope", "new_content": "A dragon appears."}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Data rag.Decision `json:"data"`
	}
	s.decode(rec, &resp)
	s.Equal(rag.StoryNotFound, resp.Data.Response)
	s.False(resp.Data.IsPermissible)

	s.Require().NoError(s.srv.Seed(context.Background()))
	rec = s.do(http.MethodPost, "/api/propose-expansion", `{"story_id": "1", "new_content": "A bee buzzed past the Little Seed.", "page_number": 2}`)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.decode(rec, &resp)
	s.True(resp.Data.IsPermissible)
	s.Equal(schema.ProposalApproved, resp.Data.Proposal.Status)
	s.NotNil(resp.Data.Report)

	rec = s.do(http.MethodPost, "/api/propose-expansion", `{"story_id": "1", "new_content": " "}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestIngestInBackground() {
	rec := s.do(http.MethodPost, "/api/ingest", lunaBook)
	s.Require().Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `"story_id":"luna's_garden"`)
	s.Contains(rec.Body.String(), `"pages_count":2`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.srv.Shutdown(ctx))

	ds, err := s.store.GetDataset(context.Background(), "luna's_garden")
	s.Require().NoError(err)
	s.Equal(4, ds.Version)

	st, err := s.store.GetStory(context.Background(), "luna's_garden")
	s.Require().NoError(err)
	s.Equal("A. Writer", st.Author)
	s.Equal("Luna walked into the Garden.", st.Content)
}

func (s *ServerSuite) TestIngestStream() {
	rec := s.do(http.MethodPost, "/api/ingest", lunaBook, echo.HeaderAccept, "text/event-stream")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	s.Contains(body, "event: started\n")
	s.Contains(body, "event: done\n")
	s.Contains(body, `"version":4`)
	s.True(strings.HasSuffix(body, "event: close\ndata: null\n\n"))
}

func (s *ServerSuite) TestIngestRejectsBadBooks() {
	for _, body := range []string{
		`{"title": "Empty", "pages": []}`,
		`{"title": "", "pages": [{"page_number": 1, "text": "x"}]}`,
		`{"title": "Odd", "pages": ["just text"]}`,
		`not json`,
	} {
		rec := s.do(http.MethodPost, "/api/ingest", body)
		s.Equal(http.StatusBadRequest, rec.Code, body)
	}
}

func (s *ServerSuite) TestAnalyze() {
	rec := s.do(http.MethodPost, "/api/analyze", `{"text": "Luna walked into the Garden at night."}`)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp struct {
		Data storylogic.FiveWOneH `json:"data"`
	}
	s.decode(rec, &resp)
	s.Equal([]string{"Luna"}, resp.Data.Who)
	s.Equal([]string{"Garden"}, resp.Data.Where)

	rec = s.do(http.MethodPost, "/api/analyze", `{"text": ""}`)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestSeed() {
	ctx := context.Background()
	s.Require().NoError(s.srv.Seed(ctx))
	s.Require().NoError(s.srv.Seed(ctx), "seeding twice is a no-op")

	rec := s.do(http.MethodGet, "/api/stories/1", "")
	s.Require().Equal(http.StatusOK, rec.Code)
	var v storyView
	s.decode(rec, &v)
	s.Equal("The Little Seed", v.Title)
	s.Len(v.Messages, 1)
	s.Require().Len(v.Elements, 2)
	s.Equal("char_the_little_seed", v.Elements[0].ID)
	s.Equal("loc_garden", v.Elements[1].ID)

	rec = s.do(http.MethodPost, "/api/stories/1/messages", `{"content": "Tell me about the garden"}`)
	s.Require().Equal(http.StatusCreated, rec.Code)
	st, err := s.store.GetStory(ctx, "1")
	s.Require().NoError(err)
	s.Contains(st.Messages[2].Content, "'The Little Seed' is about:")
}

func (s *ServerSuite) TestStaticIsNotCached() {
	rec := s.do(http.MethodGet, "/static/app.js", "")
	s.Equal("no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
}
