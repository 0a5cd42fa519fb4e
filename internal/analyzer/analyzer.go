package analyzer

import (
	"fmt"
	"image"

	"github.com/ironsheep/uv-coverage/internal/detection"
	"github.com/ironsheep/uv-coverage/internal/imaging"
)

// Result is the outcome of one successful analysis.
//
// Coverage and the overlay are derived from the same mask, so the outlines drawn in
// Annotated are exactly the regions that were counted.
type Result struct {
	// Coverage is 100 * MaskCount / TotalPixels, in the range 0-100.
	Coverage float64 `json:"coverage_percentage"`

	// Annotated is a copy of the input frame with outlines and the percentage label
	// drawn in. Its size always equals the input size and its origin is (0, 0).
	Annotated *image.NRGBA `json:"-"`

	// Regions are the external outlines of the mask blobs.
	Regions []detection.Region `json:"regions"`

	// MaskCount is the number of pixels classified as particle.
	MaskCount int `json:"mask_count"`

	// TotalPixels is width * height of the input frame.
	TotalPixels int `json:"total_pixels"`

	// Threshold is the threshold the mask was built with.
	Threshold int `json:"threshold"`
}

// Label returns the text burned into the annotated image for this result.
func (r *Result) Label(prefix string) string {
	return FormatLabel(prefix, r.Coverage)
}

// FormatLabel renders a coverage value the way it appears on the overlay.
func FormatLabel(prefix string, coverage float64) string {
	return fmt.Sprintf("%s: %.2f%%", prefix, coverage)
}

// Analyze measures particle coverage in img and renders the annotated overlay.
//
// # Pipeline
//
//  1. BT.601 luminance.
//  2. Gaussian smoothing with opts.KernelSize and opts.Sigma.
//  3. Global threshold: luminance >= opts.Threshold becomes 255.
//  4. Coverage = 100 * count(255) / (width * height).
//  5. External outlines of the mask blobs.
//  6. Outlines and the label drawn onto a copy of img.
//
// img is never modified. Invalid options return an error wrapping ErrInvalidOptions.
// Internal inconsistencies between the mask and the frame panic.
func Analyze(img image.Image, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, &imaging.DecodeError{Source: "<image>", Err: fmt.Errorf("image has no pixels")}
	}

	mask, err := coverageMask(img, opts)
	if err != nil {
		return nil, err
	}
	if mask.Bounds().Size() != bounds.Size() {
		panic(fmt.Sprintf("analyzer: mask size %v differs from frame size %v",
			mask.Bounds().Size(), bounds.Size()))
	}

	total := bounds.Dx() * bounds.Dy()
	count := imaging.CountNonZero(mask)
	if count > total {
		panic(fmt.Sprintf("analyzer: mask count %d exceeds %d pixels", count, total))
	}
	coverage := 100.0 * float64(count) / float64(total)

	regions := detection.FindExternalRegions(mask)

	annotated, err := render(img, regions, coverage, opts)
	if err != nil {
		return nil, err
	}

	return &Result{
		Coverage:    coverage,
		Annotated:   annotated,
		Regions:     regions,
		MaskCount:   count,
		TotalPixels: total,
		Threshold:   opts.Threshold,
	}, nil
}

// AnalyzeBytes decodes data and analyzes it. Undecodable data returns a
// *imaging.DecodeError and a nil result.
func AnalyzeBytes(data []byte, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	img, err := imaging.DecodeBytes(data)
	if err != nil {
		return nil, err
	}
	return Analyze(img, opts)
}

// AnalyzeFile loads the image at path and analyzes it. Missing, empty or corrupt
// files return a *imaging.DecodeError and a nil result.
func AnalyzeFile(path string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	img, err := imaging.Load(path)
	if err != nil {
		return nil, err
	}
	return Analyze(img, opts)
}

// coverageMask runs steps 1-3 of the pipeline.
func coverageMask(img image.Image, opts Options) (*image.Gray, error) {
	gray := imaging.Luminance(img)

	smoothed, err := imaging.Smooth(gray, opts.KernelSize, opts.Sigma)
	if err != nil {
		return nil, fmt.Errorf("failed to smooth frame: %w", err)
	}

	return imaging.Threshold(smoothed, uint8(opts.Threshold)), nil
}

// render draws the outlines and the label onto a copy of img.
func render(img image.Image, regions []detection.Region, coverage float64, opts Options) (*image.NRGBA, error) {
	contourColor, err := imaging.ParseColor(opts.ContourColor)
	if err != nil {
		return nil, fmt.Errorf("%w: contour color: %v", ErrInvalidOptions, err)
	}
	labelColor, err := imaging.ParseColor(opts.LabelColor)
	if err != nil {
		return nil, fmt.Errorf("%w: label color: %v", ErrInvalidOptions, err)
	}

	out := imaging.CopyToNRGBA(img)
	for _, r := range regions {
		imaging.DrawPolygon(out, r.ImagePoints(), contourColor, opts.StrokeWidth)
	}

	imaging.DrawLabel(out, image.Pt(opts.LabelX, opts.LabelY), FormatLabel(opts.LabelPrefix, coverage),
		imaging.LabelStyle{
			Color:     labelColor,
			Scale:     opts.LabelScale,
			Thickness: opts.LabelThickness,
		})

	return out, nil
}
