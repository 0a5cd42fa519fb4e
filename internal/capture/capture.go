// Package capture runs the camera side of the system: take a frame, upload it to the
// ingress service, log the result, wait, repeat.
//
// Every failure is logged and retried on the next tick; the loop only stops when its
// context is cancelled.
package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Camera produces a frame and returns the path of the written image.
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// Uploader sends a frame to the ingress service.
type Uploader interface {
	Upload(ctx context.Context, path string) (*UploadResponse, error)
}

// UploadResponse is the ingress service's reply to an upload.
type UploadResponse struct {
	Status     string   `json:"status"`
	Percentage *float64 `json:"percentage"`
	Error      string   `json:"error"`
}

// AnalysisFailed reports whether the server accepted the frame but could not analyze it.
func (r *UploadResponse) AnalysisFailed() bool {
	return r.Percentage == nil
}

// CommandCamera captures stills by running rpicam-still (or a compatible command).
type CommandCamera struct {
	// Command is the executable. Defaults to "rpicam-still".
	Command string

	// Path is where the frame is written.
	Path string

	// Width and Height are the capture resolution.
	Width, Height int

	// Timeout is passed to the command as its -t value.
	Timeout time.Duration
}

// Args returns the command-line arguments for one capture.
func (c *CommandCamera) Args() []string {
	return []string{
		"-n",
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
		"-o", c.Path,
		"-t", strconv.FormatInt(c.Timeout.Milliseconds(), 10),
		"--awb", "auto",
		"--exposure", "normal",
	}
}

// Capture runs the command and returns Path.
func (c *CommandCamera) Capture(ctx context.Context) (string, error) {
	command := c.Command
	if command == "" {
		command = "rpicam-still"
	}

	cmd := exec.CommandContext(ctx, command, c.Args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return "", errors.Wrapf(err, "%s: %s", command, msg)
		}
		return "", errors.Wrap(err, command)
	}
	return c.Path, nil
}

// StatusError is returned by HTTPUploader when the server replies with a non-200 status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "server returned status code: " + strconv.Itoa(e.Code)
}

// HTTPUploader posts frames as multipart field "image".
type HTTPUploader struct {
	// URL is the ingress upload endpoint.
	URL string

	// Timeout bounds each upload, including reading the reply.
	Timeout time.Duration

	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Upload sends the file at path and decodes the reply.
func (u *HTTPUploader) Upload(ctx context.Context, path string) (*UploadResponse, error) {
	if u.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.Timeout)
		defer cancel()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open frame")
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filepath.Base(path))
	if err != nil {
		return nil, errors.Wrap(err, "create form file")
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, errors.Wrap(err, "copy frame")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "close form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &out, nil
}
