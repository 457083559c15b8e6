package handler

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"image-annotator/internal/app"
	"image-annotator/internal/transport/http/response"
)

// multipartOverhead allows for form boundaries and headers on top of the
// file size limit.
const multipartOverhead = 1 << 20

var uploadFields = []string{"image", "file"}

type UploadHandler struct {
	uploads  *app.UploadService
	maxBytes int64
}

func NewUploadHandler(uploads *app.UploadService, maxBytes int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes}
}

// Form handles the browser upload form and redirects to the view page.
func (h *UploadHandler) Form(c *gin.Context) {
	result, err := h.upload(c)
	if err != nil {
		renderError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/view/"+url.PathEscape(result.Filename))
}

// Create is the JSON variant of Form.
func (h *UploadHandler) Create(c *gin.Context) {
	result, err := h.upload(c)
	if err != nil {
		reply := replyFor(err)
		response.Error(c, reply.status, reply.code, reply.message)
		return
	}
	response.OK(c, result)
}

func (h *UploadHandler) upload(c *gin.Context) (*app.UploadResult, error) {
	if h.maxBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+multipartOverhead)
	}

	header, err := formFile(c)
	if err != nil {
		_ = c.Error(err)
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, &app.Error{Kind: app.KindValidation, Stage: app.StageValidate, Err: app.ErrFileTooLarge}
		case errors.Is(err, http.ErrMissingFile):
			// The service reports the missing file and records the rejection.
			return h.uploads.Upload(c.Request.Context(), app.UploadInput{})
		default:
			return nil, &app.Error{Kind: app.KindValidation, Stage: app.StageValidate,
				Err: fmt.Errorf("%w: malformed upload form", app.ErrInvalidInput)}
		}
	}

	f, err := header.Open()
	if err != nil {
		return nil, &app.Error{Kind: app.KindValidation, Stage: app.StageValidate, Filename: header.Filename,
			Err: fmt.Errorf("%w: %v", app.ErrInvalidInput, err)}
	}
	defer f.Close()

	return h.uploads.Upload(c.Request.Context(), app.UploadInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        f,
	})
}

func formFile(c *gin.Context) (*multipart.FileHeader, error) {
	var firstErr error
	for _, field := range uploadFields {
		header, err := c.FormFile(field)
		if err == nil {
			return header, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, err
		}
	}
	return nil, firstErr
}
