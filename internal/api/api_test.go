package api

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/cybervaldez/promptyui/internal/expander"
	"github.com/cybervaldez/promptyui/internal/hooks"
)

func testHandler(t *testing.T) (*Handler, string) {
	t.Helper()
	dir := t.TempDir()
	jobsRoot := filepath.Join(dir, "jobs")
	extRoot := filepath.Join(dir, "extensions")
	require.NoError(t, os.MkdirAll(filepath.Join(jobsRoot, "demo"), 0o755))

	jobYAML := `
prompts:
  - id: p1
    text: ["a cat", "a dog"]
loras:
  - alias: style
    name: style.safetensors
    strength: 0.8
`
	require.NoError(t, os.WriteFile(filepath.Join(jobsRoot, "demo", "job.yaml"), []byte(jobYAML), 0o644))

	store := NewStore(jobsRoot, extRoot)
	return NewHandler(store, hooks.NewRegistry(), expander.Options{RangeIncrement: 0.1}, nil), dir
}

func TestListJobs_ReturnsParsedSummary(t *testing.T) {
	h, _ := testHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.ListJobs(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"demo"`)
	require.Contains(t, rec.Body.String(), `"style"`)
}

func TestGetJob_UnknownIDReturns404(t *testing.T) {
	h, _ := testHandler(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/job/missing", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := h.GetJob(c)
	require.Error(t, err)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	require.Equal(t, http.StatusNotFound, he.Code)
}

func TestPreview_ReturnsResolvedVariations(t *testing.T) {
	h, _ := testHandler(t)
	e := echo.New()
	body := `{"job_id":"demo","prompt_id":"p1","limit":10}`
	req := httptest.NewRequest(http.MethodPost, "/preview", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Preview(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total":2`)
}

func TestValidate_CleanJobIsValid(t *testing.T) {
	h, _ := testHandler(t)
	e := echo.New()
	body := `{"job_id":"demo"}`
	req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Validate(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"valid":true`)
}

func TestValidate_FlagsUnknownLoraAlias(t *testing.T) {
	h, _ := testHandler(t)
	e := echo.New()
	body := `{"job":{"prompts":[{"id":"p1","text":[{"content":"a cat"}],"loras":["ghost"]}]}}`
	req := httptest.NewRequest(http.MethodPost, "/validate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Validate(c))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `unknown lora alias`)
}

func TestSession_MergePatchRoundTrips(t *testing.T) {
	h, _ := testHandler(t)
	e := echo.New()

	post := httptest.NewRequest(http.MethodPost, "/job/demo/session", strings.NewReader(`{"selected_prompt":"p1"}`))
	post.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(post, rec)
	c.SetParamNames("id")
	c.SetParamValues("demo")
	require.NoError(t, h.PostSession(c))
	require.Contains(t, rec.Body.String(), "p1")

	get := httptest.NewRequest(http.MethodGet, "/job/demo/session", nil)
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(get, rec2)
	c2.SetParamNames("id")
	c2.SetParamValues("demo")
	require.NoError(t, h.GetSession(c2))
	require.Contains(t, rec2.Body.String(), "p1")
}

func TestStreamRegistry_StopReturnsFalseWhenIdle(t *testing.T) {
	r := NewStreamRegistry()
	require.False(t, r.Stop("nope"))

	stopped := false
	r.Register("job1", func() { stopped = true })
	require.True(t, r.Active("job1"))
	require.True(t, r.Stop("job1"))
	require.True(t, stopped)

	r.Unregister("job1")
	require.False(t, r.Active("job1"))
}
