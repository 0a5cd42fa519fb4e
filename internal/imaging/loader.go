package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"

	"github.com/disintegration/imaging"
)

// DecodeError reports that an input could not be turned into a raster.
//
// It is returned for missing or unreadable files, zero-byte inputs, corrupt data,
// unsupported formats and images with an empty bounding rectangle. Callers detect it
// with errors.As:
//
//	var decErr *imaging.DecodeError
//	if errors.As(err, &decErr) {
//	    log.Printf("cannot analyze %s: %v", decErr.Source, decErr.Err)
//	}
type DecodeError struct {
	// Source names the input: a file path, or "<bytes>" for in-memory buffers.
	Source string

	// Err is the underlying cause.
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", e.Source, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// errEmptyInput is the cause recorded for zero-byte inputs.
var errEmptyInput = errors.New("empty input")

// errEmptyBounds is the cause recorded for images that decode to zero pixels.
var errEmptyBounds = errors.New("image has no pixels")

// Load opens and decodes an image file.
//
// Supported formats are JPEG, PNG, GIF, BMP and TIFF. EXIF orientation tags written
// by cameras are applied so the returned raster is upright.
//
// Every failure, including a missing file, is reported as a *DecodeError.
func Load(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DecodeError{Source: path, Err: err}
	}
	if len(data) == 0 {
		return nil, &DecodeError{Source: path, Err: errEmptyInput}
	}
	return decode(bytes.NewReader(data), path)
}

// DecodeBytes decodes an in-memory image buffer.
func DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Source: "<bytes>", Err: errEmptyInput}
	}
	return decode(bytes.NewReader(data), "<bytes>")
}

// Decode decodes an image from r. The source name is only used in error messages.
func Decode(r io.Reader, source string) (image.Image, error) {
	return decode(r, source)
}

func decode(r io.Reader, source string) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Source: source, Err: err}
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Source: source, Err: errEmptyBounds}
	}
	return img, nil
}
