package gateway

import (
	"errors"
	"net/http"

	"github.com/tiptoro/gateway/internal/records"
	"github.com/tiptoro/gateway/pipeline"
)

// Domain errors for gateway operations.
var (
	ErrMissingImageSource = errors.New("image_source is required")
	ErrMissingOwner       = errors.New("owner_id is required")
	ErrEmptyVerifiedText  = errors.New("verified question text must not be empty")
	ErrUnknownPipeline    = errors.New("unknown pipeline")
)

// MapHTTPStatus maps gateway and pipeline errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidResumeState),
		errors.Is(err, pipeline.ErrResumeTargetMismatch),
		errors.Is(err, pipeline.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, ErrMissingImageSource),
		errors.Is(err, ErrMissingOwner),
		errors.Is(err, ErrEmptyVerifiedText),
		errors.Is(err, records.ErrInvalidSubject),
		errors.Is(err, records.ErrInvalidGrade),
		errors.Is(err, records.ErrInvalidReason):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
