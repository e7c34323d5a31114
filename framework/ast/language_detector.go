package ast

import (
	"path/filepath"
	"strings"
)

// LanguageSchema is the language id editors send for schema files.
const LanguageSchema = "vespaSchema"

// LanguageDetector maps filenames/extensions to languages.
type LanguageDetector struct {
	extensionMap map[string]string
}

// NewLanguageDetector seeds the schema extensions.
func NewLanguageDetector() *LanguageDetector {
	ld := &LanguageDetector{extensionMap: make(map[string]string)}
	ld.extensionMap[".sd"] = LanguageSchema
	return ld
}

// Detect returns the language for path or "unknown".
func (ld *LanguageDetector) Detect(path string) string {
	if path == "" {
		return "unknown"
	}
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := ld.extensionMap[ext]; ok {
		return lang
	}
	return "unknown"
}

// Supported reports whether path maps to a known language.
func (ld *LanguageDetector) Supported(path string) bool {
	return ld.Detect(path) != "unknown"
}
