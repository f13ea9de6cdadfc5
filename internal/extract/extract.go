package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type Format string

const (
	FormatPDF  Format = ".pdf"
	FormatDOCX Format = ".docx"
	FormatTXT  Format = ".txt"
)

var supported = []Format{FormatPDF, FormatDOCX, FormatTXT}

var ErrUnsupportedFormat = errors.New("unsupported file type")

// SupportedFormats lists accepted extensions, e.g. for error messages.
func SupportedFormats() []string {
	out := make([]string, len(supported))
	for i, f := range supported {
		out[i] = string(f)
	}
	return out
}

// FormatFromName picks the format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	ext := Format(strings.ToLower(filepath.Ext(name)))
	for _, f := range supported {
		if f == ext {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(SupportedFormats(), ", "))
}

// Extract returns the plain text of a document. The result may be empty; the
// caller decides whether that is an error.
func Extract(ctx context.Context, data []byte, format Format) (string, error) {
	switch format {
	case FormatTXT:
		return decodeText(data)
	case FormatPDF:
		return extractPDF(ctx, data)
	case FormatDOCX:
		return extractDOCX(data)
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, format)
	}
}
