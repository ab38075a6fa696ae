package wake

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Builtins are the keywords shipped with the detection engine. They take
// priority over custom model files.
var Builtins = []string{
	"alexa",
	"americano",
	"blueberry",
	"bumblebee",
	"computer",
	"grapefruit",
	"grasshopper",
	"hey google",
	"hey siri",
	"jarvis",
	"ok google",
	"picovoice",
	"porcupine",
	"terminator",
}

// Keyword is a resolved keyword source: either a built-in name or an
// absolute path to a custom model file.
type Keyword struct {
	Builtin string
	Path    string
}

func (k Keyword) String() string {
	if k.Builtin != "" {
		return k.Builtin
	}
	return strings.TrimSuffix(filepath.Base(k.Path), filepath.Ext(k.Path))
}

func IsBuiltin(id string) bool {
	return slices.Contains(Builtins, normalizeKeyword(id))
}

// ResolveKeyword maps an identifier to its keyword source. A built-in name
// wins; anything else needs modelPath (or the identifier itself) to be an
// absolute path to an existing file. There is no fallback.
func ResolveKeyword(id, modelPath string) (Keyword, error) {
	name := normalizeKeyword(id)
	if name == "" && modelPath == "" {
		return Keyword{}, fmt.Errorf("%w: no keyword configured", ErrInvalidModel)
	}

	if slices.Contains(Builtins, name) {
		return Keyword{Builtin: name}, nil
	}

	path := strings.TrimSpace(modelPath)
	if path == "" && looksLikePath(id) {
		path = strings.TrimSpace(id)
	}
	if path == "" {
		return Keyword{}, fmt.Errorf("%w: %q is not a built-in keyword and no model path is set", ErrInvalidModel, id)
	}
	if !filepath.IsAbs(path) {
		return Keyword{}, fmt.Errorf("%w: model path %q is not absolute", ErrInvalidModel, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return Keyword{}, fmt.Errorf("%w: %w", ErrInvalidModel, err)
	}
	if !info.Mode().IsRegular() {
		return Keyword{}, fmt.Errorf("%w: %q is not a regular file", ErrInvalidModel, path)
	}

	return Keyword{Path: path}, nil
}

func normalizeKeyword(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, "_", " ")
	return strings.Join(strings.Fields(id), " ")
}

func looksLikePath(id string) bool {
	return strings.ContainsRune(id, os.PathSeparator) || strings.HasSuffix(strings.ToLower(id), ".ppn")
}
