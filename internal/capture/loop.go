package capture

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/pkg/errors"
)

// FailureKind classifies why an attempt failed.
type FailureKind int

const (
	// KindCapture means the camera command failed.
	KindCapture FailureKind = iota
	// KindConnection means the server could not be reached.
	KindConnection
	// KindTimeout means the upload did not finish in time.
	KindTimeout
	// KindStatus means the server replied with a non-200 status.
	KindStatus
	// KindUnexpected covers everything else.
	KindUnexpected
)

func (k FailureKind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindStatus:
		return "status"
	default:
		return "unexpected"
	}
}

// Failure is a classified attempt error.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// classifyUpload maps an upload error to its kind.
func classifyUpload(err error) FailureKind {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return KindStatus
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}
	return KindUnexpected
}

// Loop captures and uploads frames at a fixed pace.
type Loop struct {
	Camera   Camera
	Uploader Uploader

	// Interval is the pause after every attempt, successful or not.
	Interval time.Duration

	// Logger defaults to the standard logger.
	Logger *log.Logger
}

func (l *Loop) logger() *log.Logger {
	if l.Logger == nil {
		return log.Default()
	}
	return l.Logger
}

// Run repeats Once until ctx is cancelled. Failures are logged and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Once(ctx)
		if ctx.Err() != nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.Interval):
		}
	}
}

// Once performs one capture and upload, logs the outcome and returns the classified
// failure, or nil.
func (l *Loop) Once(ctx context.Context) error {
	logger := l.logger()

	logger.Printf("Capturing frame...")
	path, err := l.Camera.Capture(ctx)
	if err != nil {
		logger.Printf("Error: Camera capture failed. %v", err)
		return &Failure{Kind: KindCapture, Err: err}
	}

	resp, err := l.Uploader.Upload(ctx, path)
	if err != nil {
		f := &Failure{Kind: classifyUpload(err), Err: err}
		switch f.Kind {
		case KindConnection:
			logger.Printf("Error: Could not connect to the server. Is it running? (%v)", err)
		case KindTimeout:
			logger.Printf("Error: Upload timed out. Network might be slow.")
		case KindStatus:
			logger.Printf("Failed. %v", err)
		default:
			logger.Printf("Unexpected error: %v", err)
		}
		return f
	}

	if resp.AnalysisFailed() {
		logger.Printf("Uploaded, but analysis failed: %s", resp.Error)
		return nil
	}
	logger.Printf("Success! Detected: %.4f%% Microplastics", *resp.Percentage)
	return nil
}
