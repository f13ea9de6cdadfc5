package handler

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/osiDTDr/ai-contract-review/common/id"
	"github.com/osiDTDr/ai-contract-review/internal/extract"
	"github.com/osiDTDr/ai-contract-review/internal/http/dto"
	"github.com/osiDTDr/ai-contract-review/internal/review"
	"github.com/osiDTDr/ai-contract-review/internal/service"
	"github.com/osiDTDr/ai-contract-review/internal/store"
)

const maxRulesBytes = 1 << 20

type ReviewHandler struct {
	reviews   service.ReviewService
	maxUpload int64
}

func NewReviewHandler(reviews service.ReviewService, maxUpload int64) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, maxUpload: maxUpload}
}

// Analyze reviews a multipart upload. The contract goes in "file"; an
// optional "rules" field (file or text) replaces the rule set for this call.
func (h *ReviewHandler) Analyze(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.AnalyzeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_kind": string(review.KindConfiguration)})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			h.tooLarge(c)
			return
		}
		slog.WarnContext(ctx, "missing upload", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		h.tooLarge(c)
		return
	}
	if _, err := extract.FormatFromName(fh.Filename); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:          err.Error(),
			ErrorKind:      "unsupported_format",
			SupportedTypes: extract.SupportedFormats(),
			ReasoningTrace: []review.TraceEntry{},
		})
		return
	}

	data, err := readFile(fh, h.maxUpload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read upload", "file_name", fh.Filename, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	rules, err := rulesField(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "error_kind": string(review.KindConfiguration)})
		return
	}

	out, err := h.reviews.Analyze(ctx, service.Upload{FileName: fh.Filename, Data: data, Rules: rules})
	if err != nil {
		h.fail(c, q.Format, out, err)
		return
	}

	if q.Format == dto.FormatText {
		h.renderText(c, http.StatusOK, out.Result.Trace)
		return
	}
	c.JSON(http.StatusOK, dto.ToAnalyzeResponse(out.ID, out.Result))
}

func (h *ReviewHandler) fail(c *gin.Context, format string, out *service.Outcome, err error) {
	status := StatusFor(err)
	resp := dto.ErrorResponse{
		Error:          err.Error(),
		ErrorKind:      KindFor(err),
		ReasoningTrace: []review.TraceEntry{},
	}
	if errors.Is(err, extract.ErrUnsupportedFormat) {
		resp.SupportedTypes = extract.SupportedFormats()
	}
	if out != nil {
		resp.ReviewID = out.ID
		if out.Result != nil && out.Result.Trace != nil {
			resp.ReasoningTrace = out.Result.Trace
		}
	}

	if format == dto.FormatText {
		h.renderText(c, status, resp.ReasoningTrace)
		return
	}
	c.JSON(status, resp)
}

func (h *ReviewHandler) renderText(c *gin.Context, status int, trace []review.TraceEntry) {
	var buf bytes.Buffer
	if err := review.RenderText(&buf, trace); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render trace"})
		return
	}
	c.Data(status, "text/plain; charset=utf-8", buf.Bytes())
}

func (h *ReviewHandler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{
		"error": fmt.Sprintf("upload exceeds %d bytes", h.maxUpload),
	})
}

func (h *ReviewHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	reviewID, err := id.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	r, err := h.reviews.Get(ctx, reviewID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		case errors.Is(err, service.ErrPersistenceDisabled):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			slog.ErrorContext(ctx, "failed to load review", "review_id", reviewID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load review"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.ToReviewResponse(r))
}

func (h *ReviewHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var q dto.ListReviewsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	reviews, err := h.reviews.List(ctx, q.Limit)
	if err != nil {
		if errors.Is(err, service.ErrPersistenceDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to list reviews", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reviews"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reviews": dto.ToReviewSummaries(reviews)})
}

func readFile(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit)
	}
	return io.ReadAll(r)
}

// rulesField accepts the rules YAML either as an uploaded file or as a plain
// form value.
func rulesField(c *gin.Context) ([]byte, error) {
	if fh, err := c.FormFile("rules"); err == nil {
		if fh.Size > maxRulesBytes {
			return nil, fmt.Errorf("rules file exceeds %d bytes", maxRulesBytes)
		}
		return readFile(fh, maxRulesBytes)
	}
	if v, ok := c.GetPostForm("rules"); ok && v != "" {
		return []byte(v), nil
	}
	return nil, nil
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge)
}
