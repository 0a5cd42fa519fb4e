package analyzer

import (
	"path/filepath"
	"strings"
)

// AnnotatedSuffix is inserted before the extension of an annotated image's name.
const AnnotatedSuffix = "_detected"

// AnnotatedName derives the annotated image's name from the original's.
//
//	frame_1712.jpg          -> frame_1712_detected.jpg
//	uploads/frame_1712.png  -> uploads/frame_1712_detected.png
//	frame                   -> frame_detected
//	.jpg                    -> _detected.jpg
//
// The directory part is preserved. OriginalName reverses the transform for every
// input, including names with an empty stem.
func AnnotatedName(original string) string {
	ext := filepath.Ext(original)
	return strings.TrimSuffix(original, ext) + AnnotatedSuffix + ext
}

// OriginalName reverses AnnotatedName. The boolean is false when name is not an
// annotated image name.
func OriginalName(name string) (string, bool) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if !strings.HasSuffix(filepath.Base(stem), AnnotatedSuffix) {
		return "", false
	}
	return strings.TrimSuffix(stem, AnnotatedSuffix) + ext, true
}

// IsAnnotatedName reports whether name was produced by AnnotatedName.
func IsAnnotatedName(name string) bool {
	_, ok := OriginalName(name)
	return ok
}
