package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/uv-coverage/internal/analyzer"
	"github.com/ironsheep/uv-coverage/internal/imaging"
	"github.com/ironsheep/uv-coverage/internal/store"
)

// memRecorder keeps records in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []store.Record
	err     error
}

func (m *memRecorder) Insert(_ context.Context, rec *store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func (m *memRecorder) Recent(_ context.Context, limit int) ([]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Record
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// squarePNG encodes a 100x100 black frame with a white 10x10 square.
func squarePNG(t *testing.T) []byte {
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

func newTestService(t *testing.T, rec Recorder) *Service {
	t.Helper()
	opts := analyzer.DefaultOptions()
	opts.KernelSize = 1

	svc, err := New(Config{
		UploadDir: filepath.Join(t.TempDir(), "uploads"),
		Options:   opts,
		Logger:    log.New(io.Discard, "", 0),
	}, rec)
	require.NoError(t, err)

	clock := time.UnixMilli(1712345678901)
	svc.now = func() time.Time { return clock }
	return svc
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Options: analyzer.DefaultOptions()}, nil)
	assert.Error(t, err)

	bad := analyzer.DefaultOptions()
	bad.KernelSize = 2
	_, err = New(Config{UploadDir: t.TempDir(), Options: bad}, nil)
	assert.ErrorIs(t, err, analyzer.ErrInvalidOptions)
}

func TestIngest_Success(t *testing.T) {
	rec := &memRecorder{}
	svc := newTestService(t, rec)

	out, err := svc.Ingest(context.Background(), Upload{Filename: "capture.png", Data: squarePNG(t)})
	require.NoError(t, err)
	require.False(t, out.Failed())

	assert.Equal(t, "frame_1712345678901.png", out.Record.OriginalFilename)
	require.NotNil(t, out.Record.AnnotatedFilename)
	assert.Equal(t, "frame_1712345678901_detected.png", *out.Record.AnnotatedFilename)
	require.NotNil(t, out.Record.Percentage)
	assert.InDelta(t, 1.0, *out.Record.Percentage, 1e-9)
	require.NotNil(t, out.Result)
	assert.Len(t, out.Result.Regions, 1)

	assert.FileExists(t, filepath.Join(svc.UploadDir(), "frame_1712345678901.png"))
	assert.FileExists(t, filepath.Join(svc.UploadDir(), "frame_1712345678901_detected.png"))

	require.Len(t, rec.records, 1)
	assert.Equal(t, store.StatusOK, rec.records[0].Status)
}

func TestIngest_DecodeFailureIsRecorded(t *testing.T) {
	rec := &memRecorder{}
	svc := newTestService(t, rec)

	out, err := svc.Ingest(context.Background(), Upload{Filename: "capture.jpg", Data: []byte("garbage")})
	require.NoError(t, err, "decode failures must not be returned as errors")
	require.True(t, out.Failed())

	assert.Nil(t, out.Record.Percentage)
	assert.Nil(t, out.Record.AnnotatedFilename)
	assert.Nil(t, out.Result)
	assert.Equal(t, "failed to decode image frame_1712345678901.jpg: "+decodeCause(t, []byte("garbage")), out.Record.Error)
	assert.NotContains(t, out.Record.Error, svc.UploadDir())

	require.Len(t, rec.records, 1)
	assert.Equal(t, store.StatusFailed, rec.records[0].Status)
	assert.NoFileExists(t, filepath.Join(svc.UploadDir(), "frame_1712345678901_detected.jpg"))
}

func TestIngest_EmptyUpload(t *testing.T) {
	svc := newTestService(t, &memRecorder{})

	_, err := svc.Ingest(context.Background(), Upload{Filename: "x.jpg"})
	assert.ErrorIs(t, err, ErrEmptyUpload)
}

func TestIngest_NeverOverwrites(t *testing.T) {
	svc := newTestService(t, nil)
	data := squarePNG(t)

	first, err := svc.Ingest(context.Background(), Upload{Filename: "a.jpg", Data: data})
	require.NoError(t, err)
	second, err := svc.Ingest(context.Background(), Upload{Filename: "b.jpg", Data: data})
	require.NoError(t, err)

	assert.Equal(t, "frame_1712345678901.jpg", first.Record.OriginalFilename)
	assert.Equal(t, "frame_1712345678902.jpg", second.Record.OriginalFilename)
}

func TestIngest_RecorderFailure(t *testing.T) {
	rec := &memRecorder{err: errors.New("disk full")}
	svc := newTestService(t, rec)

	_, err := svc.Ingest(context.Background(), Upload{Filename: "a.png", Data: squarePNG(t)})
	assert.ErrorContains(t, err, "disk full")
}

func TestIngest_StoreFailure(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, os.RemoveAll(svc.UploadDir()))
	// a plain file where the directory should be
	require.NoError(t, os.WriteFile(svc.UploadDir(), nil, 0o644))

	_, err := svc.Ingest(context.Background(), Upload{Filename: "a.png", Data: squarePNG(t)})
	assert.Error(t, err)
}

func TestIngest_WaitsForSlot(t *testing.T) {
	svc := newTestService(t, nil)
	require.NoError(t, svc.sem.Acquire(context.Background(), 2))
	defer svc.sem.Release(2)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Ingest(ctx, Upload{Filename: "a.png", Data: squarePNG(t)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	entries, err := os.ReadDir(svc.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be stored without an analysis slot")
}

func TestDecodeFailure_HidesDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "uploads", "frame_1.jpg")
	_, err := imaging.Load(missing)

	var decErr *imaging.DecodeError
	require.True(t, errors.As(err, &decErr))

	msg := decodeFailure(decErr, "frame_1.jpg")
	assert.Equal(t, "failed to decode image frame_1.jpg: no such file or directory", msg)
	assert.NotContains(t, msg, filepath.Dir(missing))
}

// decodeCause returns the decoder's own message for data.
func decodeCause(t *testing.T, data []byte) string {
	t.Helper()
	_, err := imaging.DecodeBytes(data)

	var decErr *imaging.DecodeError
	require.True(t, errors.As(err, &decErr))
	return decErr.Err.Error()
}

func TestHistory(t *testing.T) {
	rec := &memRecorder{}
	svc := newTestService(t, rec)
	for i := 0; i < 3; i++ {
		_, err := svc.Ingest(context.Background(), Upload{Filename: "a.png", Data: squarePNG(t)})
		require.NoError(t, err)
	}

	recs, err := svc.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].ID)

	_, err = newTestService(t, nil).History(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(0))
	assert.Equal(t, DefaultHistoryLimit, ClampLimit(-5))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, 120, ClampLimit(120))
	assert.Equal(t, MaxHistoryLimit, ClampLimit(10000))
}

func TestUploadExt(t *testing.T) {
	assert.Equal(t, ".jpg", uploadExt("frame.jpg"))
	assert.Equal(t, ".jpeg", uploadExt("FRAME.JPEG"))
	assert.Equal(t, ".png", uploadExt("x.png"))
	assert.Equal(t, ".jpg", uploadExt("x.exe"))
	assert.Equal(t, ".jpg", uploadExt(""))
}

func TestFrames(t *testing.T) {
	svc := newTestService(t, nil)
	dir := svc.UploadDir()
	for _, name := range []string{
		"frame_1.jpg", "frame_1_detected.jpg",
		"frame_2.jpg",
		"frame_3.png", "frame_3_detected.png",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	frames, err := svc.Frames(20)
	require.NoError(t, err)
	assert.Equal(t, []Frame{
		{Original: "frame_1.jpg", Annotated: "frame_1_detected.jpg"},
		{Original: "frame_2.jpg"},
		{Original: "frame_3.png", Annotated: "frame_3_detected.png"},
	}, frames)

	last, err := svc.Frames(2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "frame_2.jpg", last[0].Original)
}
