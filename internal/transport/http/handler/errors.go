package handler

import (
	"errors"
	"net/http"

	"image-annotator/internal/app"
	"image-annotator/internal/transport/http/response"
)

type errorReply struct {
	status  int
	code    int
	message string
}

// replyFor maps a service error to its HTTP status, response code and a
// message safe to show to clients. Only validation errors expose details.
func replyFor(err error) errorReply {
	switch app.KindOf(err) {
	case app.KindValidation:
		code := response.CodeBadRequest
		switch {
		case errors.Is(err, app.ErrFileTooLarge):
			code = response.CodeFileTooLarge
		case errors.Is(err, app.ErrUnsupportedType):
			code = response.CodeUnsupportedType
		}
		return errorReply{http.StatusBadRequest, code, validationMessage(err)}
	case app.KindCaptioning:
		return errorReply{http.StatusBadGateway, response.CodeCaptioningFailed, "captioning service unavailable, please try again later"}
	case app.KindNotFound:
		return errorReply{http.StatusNotFound, response.CodeImageNotFound, "image not found"}
	case app.KindStorageWrite:
		return errorReply{http.StatusInternalServerError, response.CodeStorageWriteFailed, "failed to store image"}
	case app.KindStorageRead:
		return errorReply{http.StatusInternalServerError, response.CodeStorageReadFailed, "failed to read image catalog"}
	case app.KindMetadataCorrupt:
		return errorReply{http.StatusInternalServerError, response.CodeMetadataCorrupt, "stored image metadata is corrupt"}
	default:
		return errorReply{http.StatusInternalServerError, response.CodeInternalServer, "internal server error"}
	}
}

func validationMessage(err error) string {
	var appErr *app.Error
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return err.Error()
}
