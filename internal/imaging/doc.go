// Package imaging provides the raster operations behind coverage analysis.
//
// This package implements the pixel-level building blocks used by the frame
// analyzer: decoding, brightness conversion, Gaussian smoothing, thresholding,
// overlay drawing and encoding. All operations work with standard Go image types
// and use a coordinate system where (0,0) is at the top-left corner, X increases
// rightward, and Y increases downward.
//
// # Coordinate System
//
// Luminance, Smooth and Threshold always return images whose origin is (0, 0),
// even when the source image has a non-zero Bounds().Min. CopyToNRGBA does the
// same, so masks and annotated copies of one frame share one coordinate space.
//
// # Decoding
//
// Load, Decode and DecodeBytes report every failure as a *DecodeError. A zero-byte
// input, a corrupt file and an unsupported format are all decode failures; none of
// them produce an empty image.
//
// # Thread Safety
//
// The package holds no mutable state. Operations allocate their outputs and never
// modify their inputs, except the Draw* functions, which draw into the destination
// image they are given. Concurrent calls on different images need no coordination.
//
// # Numeric Behaviour
//
// Brightness conversion and each smoothing pass round to the nearest integer. The
// fixed kernels for sizes up to 7 are sums of powers of two, so a uniform image is
// reproduced exactly by Smooth.
package imaging
