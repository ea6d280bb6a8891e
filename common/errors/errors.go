package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

var (
	ErrBadRequest         = New(http.StatusBadRequest, "Bad request", nil)
	ErrNotFound           = New(http.StatusNotFound, "Not found", nil)
	ErrInternalServer     = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrServiceUnavailable = New(http.StatusServiceUnavailable, "Service unavailable", nil)
)

// Ingestion outcomes that stop a run before any batch is submitted.
var (
	ErrIngestionCancelled = stderrors.New("ingestion cancelled")
	ErrDuplicatesFound    = stderrors.New("duplicate skus found")
)

// RowError describes one rejected sheet row or image file.
type RowError struct {
	Row     int    `json:"row,omitempty"`
	File    string `json:"file,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"error"`
}

// ValidationError rejects the input before the pipeline runs.
type ValidationError struct {
	Rows []RowError `json:"errors"`
}

func (e *ValidationError) Error() string {
	if len(e.Rows) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Rows))
	for _, r := range e.Rows {
		switch {
		case r.File != "":
			msgs = append(msgs, fmt.Sprintf("%s: %s", r.File, r.Message))
		case r.Row > 0:
			msgs = append(msgs, fmt.Sprintf("row %d: %s", r.Row, r.Message))
		default:
			msgs = append(msgs, r.Message)
		}
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Add appends a row error.
func (e *ValidationError) Add(r RowError) {
	e.Rows = append(e.Rows, r)
}

// OrNil returns nil when no rows were rejected.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Rows) == 0 {
		return nil
	}
	return e
}

// LookupError means the existing-SKU check against the product store failed.
type LookupError struct {
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("duplicate lookup failed: %v", e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// CompressionError is recorded per image. The original bytes are kept.
type CompressionError struct {
	FileName string
	Err      error
}

func (e *CompressionError) Error() string {
	return fmt.Sprintf("compress %s: %v", e.FileName, e.Err)
}

func (e *CompressionError) Unwrap() error { return e.Err }

// BatchPersistError carries the terminal error of one failed batch.
type BatchPersistError struct {
	BatchIndex int
	Err        error
}

func (e *BatchPersistError) Error() string {
	return fmt.Sprintf("batch %d: %v", e.BatchIndex, e.Err)
}

func (e *BatchPersistError) Unwrap() error { return e.Err }

// StatusError is an error carrying an HTTP status code from a remote call.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Status)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// HTTPStatusCode matches the accessor exposed by AWS SDK response errors.
func (e *StatusError) HTTPStatusCode() int { return e.Status }

// HTTPStatus maps a pipeline error to the response code handlers return.
func HTTPStatus(err error) int {
	var appErr *Error
	var validationErr *ValidationError
	var lookupErr *LookupError
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.As(err, &appErr):
		return appErr.Code
	case stderrors.As(err, &validationErr):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrDuplicatesFound):
		return http.StatusConflict
	case stderrors.Is(err, ErrIngestionCancelled):
		return http.StatusConflict
	case stderrors.As(err, &lookupErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorMiddleware renders the last gin error as JSON.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		var validationErr *ValidationError
		if stderrors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": validationErr.Rows})
			c.Abort()
			return
		}
		var appErr *Error
		if !stderrors.As(err, &appErr) {
			appErr = New(HTTPStatus(err), err.Error(), err)
		}
		c.JSON(appErr.Code, appErr)
		c.Abort()
	}
}
