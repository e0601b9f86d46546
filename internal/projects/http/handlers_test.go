package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelnotes/reelnotes-backend/internal/annotations"
	"github.com/reelnotes/reelnotes-backend/internal/auth"
	"github.com/reelnotes/reelnotes-backend/internal/events"
	"github.com/reelnotes/reelnotes-backend/internal/projects/domain"
	"github.com/reelnotes/reelnotes-backend/internal/projects/service"
	"github.com/reelnotes/reelnotes-backend/internal/storage/sqlitestore"
	"github.com/reelnotes/reelnotes-backend/internal/transcription"
)

type idleScheduler struct {
	mu   sync.Mutex
	jobs map[string]bool
}

func (s *idleScheduler) Schedule(job transcription.Job) {
	s.mu.Lock()
	s.jobs[job.ProjectID] = true
	s.mu.Unlock()
}

func (s *idleScheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

func (s *idleScheduler) Active(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

type testAPI struct {
	router *gin.Engine
	svc    *service.ProjectService
}

func setupRouter(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := sqlitestore.Open(":memory:", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	bus := events.NewMemoryBus()
	svc := service.NewProjectService(store, annotations.NewModel(store), &idleScheduler{jobs: map[string]bool{}}, bus)

	r := gin.New()
	g := r.Group("/projects")
	g.Use(func(c *gin.Context) {
		c.Set(auth.CtxUserID, c.GetHeader("X-Test-User"))
		c.Next()
	})
	New(svc, bus, WithMaxUploadBytes(1<<20), WithKeepAlive(50*time.Millisecond)).Register(g)
	return &testAPI{router: r, svc: svc}
}

type apiResponse struct {
	OK      bool             `json:"ok"`
	Error   string           `json:"error"`
	Field   string           `json:"field"`
	Project domain.Project   `json:"project"`
	Items   []domain.Project `json:"projects"`
	Notes   []map[string]any `json:"notes"`
	Note    map[string]any   `json:"note"`
}

func (a *testAPI) do(t *testing.T, method, path, user string, body any) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-User", user)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)

	var resp apiResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	return rr, resp
}

func multipartUpload(t *testing.T, name, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", mimeType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (a *testAPI) upload(t *testing.T, user string) domain.Project {
	t.Helper()
	body, ct := multipartUpload(t, "demo.mp4", "video/mp4", []byte("fake video"))
	req := httptest.NewRequest(http.MethodPost, "/projects", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", user)
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Project
}

func TestUploadAndList(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")
	assert.Equal(t, "demo.mp4", p.Name)
	assert.True(t, p.Transcribing)
	assert.Empty(t, p.Transcript)
	assert.Equal(t, "video/mp4", p.MimeType)

	rr, resp := api.do(t, http.MethodGet, "/projects", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, p.ID, resp.Items[0].ID)

	rr, resp = api.do(t, http.MethodGet, "/projects", "u2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, resp.Items)
}

func TestUpload_MissingFile(t *testing.T) {
	api := setupRouter(t)
	rr, resp := api.do(t, http.MethodPost, "/projects", "u1", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, resp.OK)
}

func TestUpload_TooLarge(t *testing.T) {
	api := setupRouter(t)
	body, ct := multipartUpload(t, "big.mp4", "video/mp4", bytes.Repeat([]byte{1}, 2<<20))
	req := httptest.NewRequest(http.MethodPost, "/projects", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-Test-User", "u1")
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestGet_OtherUserIsNotFound(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")

	rr, _ := api.do(t, http.MethodGet, "/projects/"+p.ID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, resp := api.do(t, http.MethodGet, "/projects/"+p.ID, "u1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, p.ID, resp.Project.ID)
}

func TestRename(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")

	rr, resp := api.do(t, http.MethodPatch, "/projects/"+p.ID, "u1", renameReq{Name: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "name", resp.Field)

	_, resp = api.do(t, http.MethodGet, "/projects/"+p.ID, "u1", nil)
	assert.Equal(t, "demo.mp4", resp.Project.Name)

	rr, resp = api.do(t, http.MethodPatch, "/projects/"+p.ID, "u1", renameReq{Name: "Take two"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Take two", resp.Project.Name)
}

func TestDelete(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")

	rr, _ := api.do(t, http.MethodDelete, "/projects/"+p.ID, "u1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = api.do(t, http.MethodDelete, "/projects/"+p.ID+"?confirm=true", "u1", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = api.do(t, http.MethodGet, "/projects/"+p.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRetry_WhileTranscribing(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")
	rr, _ := api.do(t, http.MethodPost, "/projects/"+p.ID+"/transcription/retry", "u1", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestNotes(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")
	base := "/projects/" + p.ID + "/notes"

	rr, resp := api.do(t, http.MethodPost, base, "u1", map[string]any{"kind": "video", "timestamp": 12.5, "content": "jump cut"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	noteID := resp.Note["id"].(string)

	_, _ = api.do(t, http.MethodPost, base, "u1", map[string]any{"kind": "audio", "timestamp": 3, "content": "clipping"})

	// verbal needs a transcript to point into
	rr, resp = api.do(t, http.MethodPost, base, "u1", map[string]any{
		"kind": "verbal", "content": "x", "transcript_segment_index": 0,
		"highlight_start": 0, "highlight_end": 5, "quote": "Hello",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "transcript_segment_index", resp.Field)

	rr, resp = api.do(t, http.MethodGet, base+"?kind=video", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, resp.Notes, 1)
	assert.Equal(t, "jump cut", resp.Notes[0]["content"])

	rr, _ = api.do(t, http.MethodGet, base+"?kind=bogus", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	for i := 0; i < 2; i++ {
		rr, _ = api.do(t, http.MethodDelete, base+"/"+noteID, "u1", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
	_, resp = api.do(t, http.MethodGet, base, "u1", nil)
	assert.Len(t, resp.Notes, 1)

	rr, _ = api.do(t, http.MethodGet, base, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStreamEvents(t *testing.T) {
	api := setupRouter(t)
	p := api.upload(t, "u1")

	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/projects/"+p.ID+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-User", "u1")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	names := make(chan string, 16)
	go func() {
		defer close(names)
		sc := bufio.NewScanner(res.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				names <- name
			}
		}
	}()

	next := func() string {
		select {
		case e, ok := <-names:
			require.True(t, ok, "stream closed early")
			return e
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "initial", next())

	_, err = api.svc.Rename(ctx, "u1", p.ID, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "update", next())

	require.NoError(t, api.svc.Delete(ctx, "u1", p.ID, true))
	assert.Equal(t, "deleted", next())
}
