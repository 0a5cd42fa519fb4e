package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/convolution"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
)

// ITU-R BT.601 luminance weights.
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// MaxKernelSize is the largest smoothing kernel accepted by Smooth.
const MaxKernelSize = 31

// Luminance converts img to a single-channel brightness map.
//
// The conversion uses the ITU-R BT.601 weights (0.299*R + 0.587*G + 0.114*B),
// rounded to the nearest integer. Alpha is ignored: each pixel is read as its
// straight (non-premultiplied) colour, so a transparent white pixel is as bright as
// an opaque one. The returned image always has its origin at (0, 0) and the same
// width and height as img, regardless of img.Bounds().Min.
func Luminance(img image.Image) *image.Gray {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	weighted := effect.GrayscaleWithWeights(opaque(img), lumaR, lumaG, lumaB)

	gray := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		src := weighted.Pix[y*weighted.Stride : y*weighted.Stride+width*4]
		dst := gray.Pix[y*gray.Stride : y*gray.Stride+width]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return gray
}

// opaque returns a straight-colour copy of img with every alpha set to 255.
// bild premultiplies by alpha when it converts to RGBA.
func opaque(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// GaussianKernel returns the normalized one-dimensional Gaussian kernel of the
// given odd size.
//
// When sigma is zero or negative it is derived from the size. Sizes 1, 3, 5 and 7
// then use the fixed binomial kernels ([1,4,6,4,1]/16 for size 5); larger sizes use
// sigma = 0.3*((size-1)*0.5-1) + 0.8.
//
// Returns an error if size is not a positive odd number no larger than MaxKernelSize.
func GaussianKernel(size int, sigma float64) ([]float64, error) {
	if size < 1 || size%2 == 0 || size > MaxKernelSize {
		return nil, fmt.Errorf("kernel size must be a positive odd number <= %d, got %d", MaxKernelSize, size)
	}

	if sigma <= 0 {
		switch size {
		case 1:
			return []float64{1}, nil
		case 3:
			return []float64{0.25, 0.5, 0.25}, nil
		case 5:
			return []float64{0.0625, 0.25, 0.375, 0.25, 0.0625}, nil
		case 7:
			return []float64{0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125}, nil
		}
		sigma = 0.3*(float64(size-1)*0.5-1) + 0.8
	}

	kernel := make([]float64, size)
	radius := size / 2
	var sum float64
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel, nil
}

// Smooth applies a separable Gaussian blur to a brightness map.
//
// Parameters:
//   - gray: Brightness map with origin (0, 0), as returned by Luminance.
//   - size: Odd kernel size. Size 1 returns an unmodified copy.
//   - sigma: Standard deviation, or 0 to derive it from size (see GaussianKernel).
//
// Pixels outside the image repeat the nearest edge pixel, and each pass rounds to
// the nearest integer, so a uniform image stays exactly uniform.
func Smooth(gray *image.Gray, size int, sigma float64) (*image.Gray, error) {
	weights, err := GaussianKernel(size, sigma)
	if err != nil {
		return nil, err
	}

	bounds := gray.Bounds()
	if size == 1 {
		out := image.NewGray(bounds)
		copy(out.Pix, gray.Pix)
		return out, nil
	}

	kernel := &convolution.Kernel{Matrix: weights, Width: size, Height: 1}
	opts := &convolution.Options{Bias: 0.5, KeepAlpha: true}

	horizontal := convolution.Convolve(gray, kernel, opts)
	blurred := convolution.Convolve(horizontal, kernel.Transposed(), opts)

	width := bounds.Dx()
	out := image.NewGray(bounds)
	for y := 0; y < bounds.Dy(); y++ {
		src := blurred.Pix[y*blurred.Stride : y*blurred.Stride+width*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+width]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out, nil
}

// Threshold produces a binary mask from a brightness map.
//
// Pixels with value >= level become 255; all others become 0.
func Threshold(gray *image.Gray, level uint8) *image.Gray {
	bounds := gray.Bounds()
	width := bounds.Dx()
	mask := image.NewGray(bounds)

	for y := 0; y < bounds.Dy(); y++ {
		src := gray.Pix[y*gray.Stride : y*gray.Stride+width]
		dst := mask.Pix[y*mask.Stride : y*mask.Stride+width]
		for x, v := range src {
			if v >= level {
				dst[x] = 0xFF
			}
		}
	}
	return mask
}

// CountNonZero returns the number of non-zero pixels in a single-channel image.
func CountNonZero(gray *image.Gray) int {
	bounds := gray.Bounds()
	width := bounds.Dx()
	count := 0
	for y := 0; y < bounds.Dy(); y++ {
		for _, v := range gray.Pix[y*gray.Stride : y*gray.Stride+width] {
			if v != 0 {
				count++
			}
		}
	}
	return count
}
