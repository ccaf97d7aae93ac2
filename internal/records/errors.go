package records

import (
	"errors"
	"net/http"
)

// Domain errors for record operations.
var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrRecordNotFound   = errors.New("mistake record not found")
	ErrDuplicate        = errors.New("record already exists")
	ErrInvalidSubject   = errors.New("unrecognized subject")
	ErrInvalidGrade     = errors.New("unrecognized grade")
	ErrInvalidReason    = errors.New("unrecognized error reason")
)

// MapHTTPStatus maps record domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrQuestionNotFound) || errors.Is(err, ErrRecordNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidSubject) ||
		errors.Is(err, ErrInvalidGrade) ||
		errors.Is(err, ErrInvalidReason) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
