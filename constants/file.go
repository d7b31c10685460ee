package constants

import "strings"

// DocFormat identifies the source format of a fiscal document.
type DocFormat string

const (
	FormatXML DocFormat = "XML"
	FormatPDF DocFormat = "PDF"
)

// AllowedExtensions holds the file extensions accepted for intake.
var AllowedExtensions = map[string]struct{}{
	"xml": {},
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat maps a file extension (with or without dot) to a DocFormat.
// Returns "" for unsupported extensions.
func MapExtToFormat(ext string) DocFormat {
	switch NormalizeExt(ext) {
	case "xml":
		return FormatXML
	case "pdf":
		return FormatPDF
	default:
		return ""
	}
}
