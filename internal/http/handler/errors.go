package handler

import (
	"errors"
	"net/http"

	"github.com/osiDTDr/ai-contract-review/internal/extract"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/service"
)

// StatusFor maps a review error onto an HTTP status: caller mistakes are
// 400, upstream model or embedding failures 502.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat), errors.Is(err, service.ErrUnreadableDocument):
		return http.StatusBadRequest
	}
	switch review.Kind(err) {
	case review.KindDocumentEmpty, review.KindConfiguration:
		return http.StatusBadRequest
	case review.KindDependency:
		return http.StatusBadGateway
	case review.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindFor names the error for response bodies.
func KindFor(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, service.ErrUnreadableDocument):
		return "unreadable_document"
	}
	return string(review.Kind(err))
}
