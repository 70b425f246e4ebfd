package service

import (
	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/docreview-api/internal/domain"
)

// sniffedTypes lists, per format, the detected MIME types (or ancestors)
// that agree with the extension.
var sniffedTypes = map[domain.DocumentFormat][]string{
	domain.FormatPDF: {"application/pdf"},
	domain.FormatDOCX: {
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/zip",
	},
	domain.FormatText:     {"text/plain"},
	domain.FormatMarkdown: {"text/plain"},
}

// DetectFormat checks a submitted file name against its content. The
// extension selects the format and the sniffed content type must agree with
// it. The detected MIME type is returned for the source descriptor.
func DetectFormat(name string, data []byte) (domain.DocumentFormat, string, error) {
	format, ok := domain.FormatFromFilename(name)
	if !ok {
		return "", "", invalidFormat("unsupported file type %q: accepted formats are docx, pdf, txt and md", name)
	}

	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range sniffedTypes[format] {
			if m.Is(want) {
				return format, detected.String(), nil
			}
		}
	}

	return "", "", invalidFormat("file content (%s) does not match the %s extension", detected.String(), format)
}
