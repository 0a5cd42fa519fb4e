// Package detection finds connected regions in binary masks.
//
// A mask is an *image.Gray where every non-zero pixel is foreground. The package
// groups foreground pixels into blobs and describes each blob by the polygon of its
// outer boundary, which is what the coverage overlay draws.
//
// # Connectivity
//
// Foreground pixels are 8-connected: diagonal neighbours belong to the same blob.
// Background is 4-connected, so a diagonal gap in a ring does not let the outside
// leak into the hole.
//
// # External Outlines Only
//
// Holes are not reported, and blobs sitting inside another blob's hole produce no
// outline of their own. Callers that need every particle should use the pixel
// counts rather than the number of regions.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//   - Bounding boxes use inclusive top-left and exclusive bottom-right
//
// # Performance Considerations
//
// Extraction is linear in the number of mask pixels plus the total outline length.
// It allocates three bool grids the size of the padded mask, about 15 MB for a
// 2592x1944 frame.
package detection
