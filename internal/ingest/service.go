// Package ingest turns uploaded frames into stored analysis results.
//
// The service layer owns the degradation policy: a frame that cannot be decoded is
// recorded as a failed analysis and acknowledged, so capture devices never retry it.
// Only failures to store data are returned as errors.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/ironsheep/uv-coverage/internal/analyzer"
	"github.com/ironsheep/uv-coverage/internal/imaging"
	"github.com/ironsheep/uv-coverage/internal/store"
)

// History limits.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 500
)

var (
	// ErrEmptyUpload is returned when an upload carries no bytes.
	ErrEmptyUpload = errors.New("no file received")

	// ErrNoStore is returned by History when the service has no record store.
	ErrNoStore = errors.New("no result store configured")
)

// Recorder persists analysis records. *store.Store implements it.
type Recorder interface {
	Insert(ctx context.Context, rec *store.Record) error
	Recent(ctx context.Context, limit int) ([]store.Record, error)
}

// Config configures a Service.
type Config struct {
	// UploadDir receives the stored frames and their annotated versions.
	UploadDir string

	// Options are passed to every analysis.
	Options analyzer.Options

	// MaxConcurrent caps simultaneous analyses. Defaults to 2.
	MaxConcurrent int64

	// Logger receives per-frame lines. Defaults to the standard logger.
	Logger *log.Logger

	// Debug enables verbose logging.
	Debug bool
}

// Upload is one frame received from a client.
type Upload struct {
	// Filename is the client's name for the file; only its extension is used.
	Filename string

	// Data is the encoded image.
	Data []byte
}

// Outcome describes what happened to one upload.
type Outcome struct {
	// Record is the persisted row, including failures.
	Record store.Record

	// Result is the analysis result, nil when the analysis failed.
	Result *analyzer.Result
}

// Failed reports whether the frame could not be analyzed.
func (o *Outcome) Failed() bool {
	return o.Record.Status == store.StatusFailed
}

// Service stores, analyzes and records uploaded frames. It is safe for concurrent use.
type Service struct {
	uploadDir string
	opts      analyzer.Options
	recorder  Recorder
	sem       *semaphore.Weighted
	logger    *log.Logger
	debug     bool
	now       func() time.Time
}

// New creates a Service, creating the upload directory if needed. rec may be nil,
// in which case outcomes are not persisted.
func New(cfg Config, rec Recorder) (*Service, error) {
	if cfg.UploadDir == "" {
		return nil, errors.New("upload directory is required")
	}
	if err := cfg.Options.Validate(); err != nil {
		return nil, errors.Wrap(err, "analysis options")
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload directory %s", cfg.UploadDir)
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		uploadDir: cfg.UploadDir,
		opts:      cfg.Options,
		recorder:  rec,
		sem:       semaphore.NewWeighted(maxConcurrent),
		logger:    logger,
		debug:     cfg.Debug,
		now:       time.Now,
	}, nil
}

// UploadDir returns the directory holding stored and annotated frames.
func (s *Service) UploadDir() string {
	return s.uploadDir
}

// Ingest stores an upload, analyzes it, saves the annotated image and records the
// outcome.
//
// A frame that cannot be decoded yields an Outcome with Status "failed" and a nil
// error. Errors are returned only when the frame or its record cannot be stored,
// or when ctx ends while waiting for an analysis slot. Nothing is written to the
// upload directory until a slot is held.
func (s *Service) Ingest(ctx context.Context, up Upload) (*Outcome, error) {
	if len(up.Data) == 0 {
		return nil, ErrEmptyUpload
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "wait for analysis slot")
	}
	stored, err := s.storeUpload(up)
	if err != nil {
		s.sem.Release(1)
		return nil, err
	}
	path := filepath.Join(s.uploadDir, stored)
	if s.debug {
		s.logger.Printf("stored %s (%d bytes)", stored, len(up.Data))
	}

	result, err := analyzer.AnalyzeFile(path, s.opts)
	s.sem.Release(1)

	outcome := &Outcome{Record: store.Record{
		Timestamp:        s.now().UTC(),
		OriginalFilename: stored,
	}}

	if err != nil {
		var decErr *imaging.DecodeError
		if !errors.As(err, &decErr) {
			return nil, errors.Wrapf(err, "analyze %s", stored)
		}
		s.logger.Printf("Analysis failed: %v", err)
		outcome.Record.Status = store.StatusFailed
		outcome.Record.Error = decodeFailure(decErr, stored)
		return outcome, s.record(ctx, &outcome.Record)
	}

	outcome.Result = result
	pct := result.Coverage
	outcome.Record.Percentage = &pct
	outcome.Record.Status = store.StatusOK

	annotated := analyzer.AnnotatedName(stored)
	if err := imaging.Save(result.Annotated, filepath.Join(s.uploadDir, annotated)); err != nil {
		s.logger.Printf("failed to save annotated image for %s: %v", stored, err)
	} else {
		outcome.Record.AnnotatedFilename = &annotated
	}

	s.logger.Printf("Image saved and analyzed. Microplastics: %.4f%%", pct)
	if s.debug {
		s.logger.Printf("%s: %d/%d pixels, %d regions", stored, result.MaskCount, result.TotalPixels, len(result.Regions))
	}

	return outcome, s.record(ctx, &outcome.Record)
}

// History returns the most recent records, newest first. limit is clamped to
// 1..MaxHistoryLimit; zero or negative means DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, limit int) ([]store.Record, error) {
	if s.recorder == nil {
		return nil, ErrNoStore
	}
	limit = ClampLimit(limit)
	recs, err := s.recorder.Recent(ctx, limit)
	return recs, errors.Wrap(err, "load history")
}

// ClampLimit normalises a requested history length.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func (s *Service) record(ctx context.Context, rec *store.Record) error {
	if s.recorder == nil {
		return nil
	}
	return errors.Wrapf(s.recorder.Insert(ctx, rec), "record result for %s", rec.OriginalFilename)
}

// storeUpload writes the frame under a fresh frame_<unix ms><ext> name and returns
// that name. Existing files are never overwritten: on a collision the timestamp is
// bumped until a free name is found.
func (s *Service) storeUpload(up Upload) (string, error) {
	ext := uploadExt(up.Filename)
	ms := s.now().UnixMilli()

	for attempt := 0; attempt < 1000; attempt++ {
		name := fmt.Sprintf("frame_%d%s", ms+int64(attempt), ext)
		f, err := os.OpenFile(filepath.Join(s.uploadDir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return "", errors.Wrapf(err, "create %s", name)
		}

		if _, err := f.Write(up.Data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", errors.Wrapf(err, "write %s", name)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", errors.Wrapf(err, "close %s", name)
		}
		return name, nil
	}
	return "", errors.Errorf("no free file name for upload at %d", ms)
}

// decodeFailure describes a decode error by the stored file name only, so the
// upload directory never reaches clients or the database.
func decodeFailure(decErr *imaging.DecodeError, stored string) string {
	cause := decErr.Err
	var pathErr *fs.PathError
	if errors.As(cause, &pathErr) {
		cause = pathErr.Err
	}
	return (&imaging.DecodeError{Source: stored, Err: cause}).Error()
}

// uploadExt keeps the client's extension for the formats cameras send and falls
// back to .jpg.
func uploadExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".jpg", ".jpeg", ".png":
		return ext
	default:
		return ".jpg"
	}
}

// Frame pairs a stored original with its annotated version.
type Frame struct {
	Original  string
	Annotated string // empty when no annotated image exists
}

// Frames lists the last limit original frames in the upload directory in name
// order, which for frame_<ms> names is arrival order.
func (s *Service) Frames(limit int) ([]Frame, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", s.uploadDir)
	}

	present := make(map[string]bool, len(entries))
	var originals []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		present[name] = true
		if uploadExt(name) == strings.ToLower(filepath.Ext(name)) && !analyzer.IsAnnotatedName(name) {
			originals = append(originals, name)
		}
	}
	sort.Strings(originals)
	if limit > 0 && len(originals) > limit {
		originals = originals[len(originals)-limit:]
	}

	frames := make([]Frame, 0, len(originals))
	for _, name := range originals {
		f := Frame{Original: name}
		if annotated := analyzer.AnnotatedName(name); present[annotated] {
			f.Annotated = annotated
		}
		frames = append(frames, f)
	}
	return frames, nil
}
