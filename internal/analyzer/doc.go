// Package analyzer estimates how much of a UV frame is covered by fluorescing
// particles.
//
// Analyze is a pure function of the image and Options: it converts the frame to
// luminance, smooths it with a small Gaussian, applies a global threshold and reports
// the fraction of pixels at or above it. The external outlines of the thresholded
// blobs are drawn onto a copy of the frame together with a percentage label.
//
// # Failure Modes
//
//   - Undecodable input (AnalyzeFile, AnalyzeBytes) returns *imaging.DecodeError and
//     no result. A failed decode is never reported as 0% coverage.
//   - Invalid Options return an error wrapping ErrInvalidOptions.
//   - A mask that disagrees with the frame size is a bug and panics.
//
// # Thread Safety
//
// Every call allocates its own intermediate rasters, so Analyze may run concurrently
// on different frames. Callers that need a concurrency limit apply it themselves.
//
// # Annotated File Names
//
// AnnotatedName maps frame_1.jpg to frame_1_detected.jpg so that stored results only
// need the original name. OriginalName is its inverse.
package analyzer
