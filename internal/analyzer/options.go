package analyzer

import (
	"errors"
	"fmt"

	"github.com/ironsheep/uv-coverage/internal/imaging"
)

// Default analysis parameters.
const (
	DefaultThreshold      = 200
	DefaultKernelSize     = 5
	DefaultContourColor   = "#FF0000"
	DefaultStrokeWidth    = 2
	DefaultLabelColor     = "#FF0000"
	DefaultLabelScale     = 1.5
	DefaultLabelThickness = 3
	DefaultLabelX         = 50
	DefaultLabelY         = 50
	DefaultLabelPrefix    = "Microplastics"
)

// Documented operating range for the threshold. Values outside it are accepted
// but usually mean the camera exposure is wrong.
const (
	MinOperatingThreshold = 100
	MaxOperatingThreshold = 240
)

// MaxLabelScale bounds LabelScale. The label is magnified by round(2*scale).
const MaxLabelScale = 10

// ErrInvalidOptions is wrapped by every error returned from Options.Validate.
var ErrInvalidOptions = errors.New("invalid analysis options")

// Options configures one analysis call.
//
// Only Threshold, KernelSize and Sigma affect the measured coverage. The remaining
// fields style the overlay and never change the percentage.
type Options struct {
	// Threshold is the minimum smoothed luminance (0-255) counted as particle.
	Threshold int `json:"threshold" yaml:"threshold"`

	// KernelSize is the Gaussian kernel width. Must be odd; 1 disables smoothing.
	KernelSize int `json:"kernel_size" yaml:"kernel_size"`

	// Sigma is the Gaussian standard deviation. Zero derives it from KernelSize.
	Sigma float64 `json:"sigma" yaml:"sigma"`

	// ContourColor is the hex colour of region outlines.
	ContourColor string `json:"contour_color" yaml:"contour_color"`

	// StrokeWidth is the outline brush size in pixels.
	StrokeWidth int `json:"stroke_width" yaml:"stroke_width"`

	// LabelColor is the hex colour of the percentage label.
	LabelColor string `json:"label_color" yaml:"label_color"`

	// LabelScale enlarges the label font.
	LabelScale float64 `json:"label_scale" yaml:"label_scale"`

	// LabelThickness is the label stroke weight in pixels.
	LabelThickness int `json:"label_thickness" yaml:"label_thickness"`

	// LabelX and LabelY locate the left end of the label baseline.
	LabelX int `json:"label_x" yaml:"label_x"`
	LabelY int `json:"label_y" yaml:"label_y"`

	// LabelPrefix precedes the percentage in the label.
	LabelPrefix string `json:"label_prefix" yaml:"label_prefix"`
}

// DefaultOptions returns the options used by the deployed system.
func DefaultOptions() Options {
	return Options{
		Threshold:      DefaultThreshold,
		KernelSize:     DefaultKernelSize,
		ContourColor:   DefaultContourColor,
		StrokeWidth:    DefaultStrokeWidth,
		LabelColor:     DefaultLabelColor,
		LabelScale:     DefaultLabelScale,
		LabelThickness: DefaultLabelThickness,
		LabelX:         DefaultLabelX,
		LabelY:         DefaultLabelY,
		LabelPrefix:    DefaultLabelPrefix,
	}
}

// Validate checks every field. Errors wrap ErrInvalidOptions.
func (o Options) Validate() error {
	if o.Threshold < 0 || o.Threshold > 255 {
		return fmt.Errorf("%w: threshold %d outside 0-255", ErrInvalidOptions, o.Threshold)
	}
	if o.KernelSize < 1 || o.KernelSize%2 == 0 || o.KernelSize > imaging.MaxKernelSize {
		return fmt.Errorf("%w: kernel size %d must be odd and between 1 and %d",
			ErrInvalidOptions, o.KernelSize, imaging.MaxKernelSize)
	}
	if o.Sigma < 0 {
		return fmt.Errorf("%w: sigma %g is negative", ErrInvalidOptions, o.Sigma)
	}
	if o.StrokeWidth < 1 {
		return fmt.Errorf("%w: stroke width %d must be at least 1", ErrInvalidOptions, o.StrokeWidth)
	}
	if !(o.LabelScale > 0 && o.LabelScale <= MaxLabelScale) {
		return fmt.Errorf("%w: label scale %g must be above 0 and at most %d",
			ErrInvalidOptions, o.LabelScale, MaxLabelScale)
	}
	if o.LabelThickness < 1 {
		return fmt.Errorf("%w: label thickness %d must be at least 1", ErrInvalidOptions, o.LabelThickness)
	}
	if _, err := imaging.ParseColor(o.ContourColor); err != nil {
		return fmt.Errorf("%w: contour color: %v", ErrInvalidOptions, err)
	}
	if _, err := imaging.ParseColor(o.LabelColor); err != nil {
		return fmt.Errorf("%w: label color: %v", ErrInvalidOptions, err)
	}
	return nil
}

// Warnings lists settings that are valid but outside their documented range.
func (o Options) Warnings() []string {
	var warnings []string
	if o.Threshold < MinOperatingThreshold || o.Threshold > MaxOperatingThreshold {
		warnings = append(warnings, fmt.Sprintf(
			"threshold %d is outside the operating range %d-%d",
			o.Threshold, MinOperatingThreshold, MaxOperatingThreshold))
	}
	return warnings
}
