package domain

import (
	"path/filepath"
	"strings"
)

// DocumentFormat identifies the kind of source artifact a job reviews.
type DocumentFormat string

// Accepted document formats.
const (
	FormatDOCX     DocumentFormat = "docx"
	FormatPDF      DocumentFormat = "pdf"
	FormatText     DocumentFormat = "txt"
	FormatMarkdown DocumentFormat = "md"
)

// formatContentTypes maps each format to the MIME type reported to model providers.
var formatContentTypes = map[DocumentFormat]string{
	FormatDOCX:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatPDF:      "application/pdf",
	FormatText:     "text/plain",
	FormatMarkdown: "text/markdown",
}

// FormatFromFilename returns the format implied by the file extension.
// The second return value is false when the extension is not a known format.
func FormatFromFilename(name string) (DocumentFormat, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	format := DocumentFormat(ext)
	if ext == "markdown" {
		format = FormatMarkdown
	}
	_, ok := formatContentTypes[format]
	return format, ok
}

// ContentType returns the canonical MIME type for the format.
func (f DocumentFormat) ContentType() string {
	return formatContentTypes[f]
}

// IsText reports whether the format is plain text that can be inlined into a prompt.
func (f DocumentFormat) IsText() bool {
	return f == FormatText || f == FormatMarkdown
}

// SourceDescriptor references the input artifact of a job. It is set when the
// job is created and never changes afterwards.
type SourceDescriptor struct {
	// Path is the storage location of the artifact (a local path for the
	// default upload store).
	Path string `json:"path"`

	// Name is the original file name supplied by the client.
	Name string `json:"name"`

	// Size is the artifact size in bytes.
	Size int64 `json:"size"`

	// Format is the detected document format.
	Format DocumentFormat `json:"format"`

	// ContentType is the MIME type detected from the artifact content.
	ContentType string `json:"content_type"`
}

// IsZero reports whether the descriptor carries no reference at all.
func (s SourceDescriptor) IsZero() bool {
	return s.Path == "" && s.Name == ""
}
