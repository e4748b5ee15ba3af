package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrNoExtractableText):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicErrorMessage hides internal fault details behind a generic message.
// The stream's terminal error event uses the same wording.
func publicErrorMessage(err error) string {
	if errors.Is(err, errUploadTooLarge) {
		return err.Error()
	}
	return domain.PublicMessage(err)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	writeError(w, status, publicErrorMessage(err))
}
