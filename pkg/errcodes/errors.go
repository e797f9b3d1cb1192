package errcodes

import (
	"fmt"
	"net/http"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		http.StatusNotFound,
		resource + " not found.",
		"not_found",
	}
}

// Conflict returns a 409 error for referential or uniqueness violations.
func Conflict(msg string) error {
	return &Error{
		http.StatusConflict,
		msg,
		"conflict",
	}
}

// CopyUnavailable returns a 409 error carrying the copy's current status and
// holder so the caller can decide whether to retry or queue a reservation.
func CopyUnavailable(status string, holderType *string, holderUserID *int) error {
	msg := fmt.Sprintf("Copy is not available; its current status is %q.", status)
	if holderType != nil && holderUserID != nil {
		msg = fmt.Sprintf("Copy is not available; its current status is %q, held by %s %d.", status, *holderType, *holderUserID)
	}
	return &Error{
		http.StatusConflict,
		msg,
		"copy_unavailable",
	}
}

// LimitExceeded returns a 422 error when a borrower is at their library's
// borrow limit.
func LimitExceeded(limit int) error {
	return &Error{
		http.StatusUnprocessableEntity,
		fmt.Sprintf("Borrow limit of %d reached.", limit),
		"limit_exceeded",
	}
}

// ReservedByOther returns a 409 error when a walk-up borrow would pre-empt
// another user's queued reservation.
func ReservedByOther() error {
	return &Error{
		http.StatusConflict,
		"Copy is reserved by another user.",
		"reserved_by_other",
	}
}

// InvalidState returns a 422 error when an operation isn't legal for the
// record's current lifecycle state.
func InvalidState(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"invalid_state",
	}
}

// PolicyError returns a 422 error when a library is missing or not accepting
// new borrows/reservations.
func PolicyError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"policy_error",
	}
}

func UnsupportedMediaType() error {
	return &Error{
		http.StatusUnsupportedMediaType,
		"Unsupported Media Type",
		"unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		fmt.Sprintf("Unknown Parameter %q", param),
		"unknown_parameter",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_error",
	}
}

func MalformedPayload() error {
	return &Error{
		http.StatusBadRequest,
		"Malformed Payload",
		"malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		http.StatusBadRequest,
		"Request body can't be empty.",
		"empty_request_body",
	}
}
