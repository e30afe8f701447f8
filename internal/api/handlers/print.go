package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printconnect/internal/core"
	"github.com/orrn/printconnect/internal/logger"
)

const multipartMemory = 8 << 20

type ErrorResponse struct {
	Error       string   `json:"error"`
	FailedFiles []string `json:"failed_files,omitempty"`
}

type PrintResponse struct {
	Message string `json:"message"`
	NewOTP  string `json:"new_otp"`
}

type PrintService interface {
	Submit(ctx context.Context, otp string, payloads []core.Payload) (*core.Result, error)
}

type PrintHandler struct {
	jobs           PrintService
	maxUploadBytes int64
}

func NewPrintHandler(jobs PrintService, maxUploadBytes int64) *PrintHandler {
	return &PrintHandler{
		jobs:           jobs,
		maxUploadBytes: maxUploadBytes,
	}
}

// ProcessPrint accepts a multipart form with the access code in "otp" and
// one or more "files" parts.
func (h *PrintHandler) ProcessPrint(c *gin.Context) {
	ctx := c.Request.Context()

	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	payloads, err := h.readForm(c.Request)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Upload too large"})
			return
		}
		logger.Warn(ctx, "failed to parse print form", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid form data"})
		return
	}

	result, err := h.jobs.Submit(ctx, c.Request.PostFormValue("otp"), payloads)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, PrintResponse{Message: "Success", NewOTP: result.NewOTP})
}

func (h *PrintHandler) readForm(r *http.Request) ([]core.Payload, error) {
	err := r.ParseMultipartForm(multipartMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	if r.MultipartForm == nil {
		return nil, nil
	}

	headers := r.MultipartForm.File["files"]
	payloads := make([]core.Payload, 0, len(headers))
	for _, fh := range headers {
		payloads = append(payloads, core.Payload{
			Filename: fh.Filename,
			Size:     fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return payloads, nil
}

func (h *PrintHandler) writeError(c *gin.Context, err error) {
	var dispatchErr *core.DispatchError
	switch {
	case errors.Is(err, core.ErrInvalidOTP):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid OTP"})
	case errors.Is(err, core.ErrNoFiles):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No files uploaded"})
	case errors.As(err, &dispatchErr):
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:       dispatchErr.Error(),
			FailedFiles: dispatchErr.FailedFiles(),
		})
	default:
		logger.Error(c.Request.Context(), "print request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}
