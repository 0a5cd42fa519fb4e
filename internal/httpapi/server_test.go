package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/uv-coverage/internal/analyzer"
	"github.com/ironsheep/uv-coverage/internal/ingest"
	"github.com/ironsheep/uv-coverage/internal/store"
)

func framePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if x >= 45 && x < 55 && y >= 45 && y < 55 {
				c = color.RGBA{255, 255, 255, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type testEnv struct {
	server *Server
	store  *store.Store
	dir    string
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	dir := t.TempDir()

	st, err := store.Open(context.Background(), filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	aopts := analyzer.DefaultOptions()
	aopts.KernelSize = 1
	logger := log.New(io.Discard, "", 0)

	svc, err := ingest.New(ingest.Config{
		UploadDir: filepath.Join(dir, "uploads"),
		Options:   aopts,
		Logger:    logger,
	}, st)
	require.NoError(t, err)

	opts.Logger = logger
	srv := New(svc, opts)
	srv.stats = func(context.Context) (*HostStats, error) {
		return &HostStats{UptimeSeconds: 3600, MemoryUsedPercent: 42.5}, nil
	}
	return &testEnv{server: srv, store: st, dir: svc.UploadDir()}
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, field, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, data)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUpload_Success(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.upload(t, "image", "frame.png", framePNG(t))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusOK, resp.Status)
	require.NotNil(t, resp.Percentage)
	assert.InDelta(t, 1.0, *resp.Percentage, 1e-9)
	require.NotNil(t, resp.DetectedFilename)
	assert.Equal(t, analyzer.AnnotatedName(resp.OriginalFilename), *resp.DetectedFilename)

	assert.FileExists(t, filepath.Join(env.dir, resp.OriginalFilename))
	assert.FileExists(t, filepath.Join(env.dir, *resp.DetectedFilename))
}

func TestUpload_AnalysisFailedStillOK(t *testing.T) {
	env := newTestEnv(t, Options{})

	rec := env.upload(t, "image", "frame.jpg", []byte("this is not a jpeg"))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusAnalysisFailed, resp.Status)
	assert.NotEmpty(t, resp.Error)
	assert.Contains(t, resp.Error, resp.OriginalFilename)
	assert.NotContains(t, resp.Error, env.dir, "the upload directory must not reach clients")
	assert.Nil(t, resp.Percentage)

	recs, err := env.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, store.StatusFailed, recs[0].Status)
}

func TestUpload_BadRequests(t *testing.T) {
	env := newTestEnv(t, Options{MaxUploadBytes: 1024})

	t.Run("wrong field", func(t *testing.T) {
		rec := env.upload(t, "file", "frame.jpg", []byte("x"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty file", func(t *testing.T) {
		rec := env.upload(t, "image", "frame.jpg", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("raw"))
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too large", func(t *testing.T) {
		rec := env.upload(t, "image", "frame.jpg", bytes.Repeat([]byte{1}, 2048))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/upload", nil)
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Camera backend running.", body["status"])
	assert.Equal(t, 42.5, body["memory_used_percent"])
	assert.Equal(t, float64(3600), body["host_uptime_seconds"])
	assert.Contains(t, body, "uptime_seconds")
}

func TestHealth_StatsUnavailable(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.server.stats = func(context.Context) (*HostStats, error) { return nil, errors.New("no /proc") }

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "memory_used_percent")
}

func TestHistory(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.upload(t, "image", "a.png", framePNG(t))
	env.upload(t, "image", "b.jpg", []byte("broken"))

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=10", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []HistoryItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)

	failed, ok := items[0], items[1]
	assert.Equal(t, store.StatusFailed, failed.Status)
	assert.Nil(t, failed.Percentage)
	assert.Nil(t, failed.DetectedImage)
	require.NotNil(t, failed.OriginalImage)
	assert.Equal(t, "/images/"+failed.OriginalFilename, *failed.OriginalImage)

	assert.Equal(t, store.StatusOK, ok.Status)
	require.NotNil(t, ok.Percentage)
	require.NotNil(t, ok.DetectedImage)
	assert.True(t, strings.HasSuffix(*ok.DetectedImage, "_detected.png"))
	assert.True(t, strings.HasSuffix(ok.Timestamp, "Z"))

	req = httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Len(t, items, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/history?limit=lots", nil)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResultsCSV(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.upload(t, "image", "a.png", framePNG(t))

	req := httptest.NewRequest(http.MethodGet, "/results.csv", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,filename,percentage,status", lines[0])
	assert.Contains(t, lines[1], ",1.0000,ok")
}

func TestGalleryAndImages(t *testing.T) {
	env := newTestEnv(t, Options{})
	rec := env.upload(t, "image", "a.png", framePNG(t))
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/gallery", nil)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/images/"+resp.OriginalFilename)
	assert.Contains(t, rec.Body.String(), "/images/"+*resp.DetectedFilename)

	req = httptest.NewRequest(http.MethodGet, "/images/"+*resp.DetectedFilename, nil)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
}

func TestFrontendAndCORS(t *testing.T) {
	frontend := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(frontend, "index.html"), []byte("<h1>dashboard</h1>"), 0o644))
	env := newTestEnv(t, Options{FrontendDir: frontend})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dashboard")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/upload", nil)
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestServe_GracefulShutdown(t *testing.T) {
	env := newTestEnv(t, Options{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/health"
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get(url)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
