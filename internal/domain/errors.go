package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned by repositories when no record matches
	ErrNotFound = errors.New("not found")
	// ErrObjectNotFound is returned by object storage for a missing key
	ErrObjectNotFound = errors.New("object not found")
)

// ErrorType is the category of a request-fatal render error
type ErrorType string

const (
	ErrorStoreNotFound    ErrorType = "STORE_NOT_FOUND"
	ErrorStoreNotActive   ErrorType = "STORE_NOT_ACTIVE"
	ErrorTemplateNotFound ErrorType = "TEMPLATE_NOT_FOUND"
	ErrorData             ErrorType = "DATA_ERROR"
	ErrorRender           ErrorType = "RENDER_ERROR"
)

// StatusCode maps the error category to its HTTP status
func (t ErrorType) StatusCode() int {
	switch t {
	case ErrorStoreNotFound, ErrorTemplateNotFound:
		return http.StatusNotFound
	case ErrorStoreNotActive:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// StoreError is the typed error surfaced to the HTTP boundary
type StoreError struct {
	Type       ErrorType      `json:"type"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode"`
	Details    map[string]any `json:"details,omitempty"`
	// Store is set when the tenant was resolved before the failure
	Store *Store `json:"-"`
	Err   error  `json:"-"`
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func newStoreError(t ErrorType, msg string, details map[string]any, err error) *StoreError {
	return &StoreError{Type: t, Message: msg, StatusCode: t.StatusCode(), Details: details, Err: err}
}

// NewStoreNotFoundError reports a domain with no tenant
func NewStoreNotFoundError(domain string) *StoreError {
	return newStoreError(ErrorStoreNotFound, "store not found", map[string]any{"domain": domain}, nil)
}

// NewStoreNotActiveError reports a tenant that exists but is deactivated
func NewStoreNotActiveError(store *Store) *StoreError {
	e := newStoreError(ErrorStoreNotActive, "store is not active",
		map[string]any{"storeId": store.ID, "storeName": store.Name}, nil)
	e.Store = store
	return e
}

// NewTemplateNotFoundError reports a missing theme or required theme file
func NewTemplateNotFoundError(store *Store, path string, err error) *StoreError {
	e := newStoreError(ErrorTemplateNotFound, "template not found", map[string]any{"path": path}, err)
	e.Store = store
	return e
}

// NewDataError reports a failed backend fetch
func NewDataError(store *Store, msg string, err error) *StoreError {
	e := newStoreError(ErrorData, msg, nil, err)
	e.Store = store
	return e
}

// NewRenderError reports a template that compiled but failed while executing
func NewRenderError(store *Store, path string, err error) *StoreError {
	e := newStoreError(ErrorRender, "failed to render template", map[string]any{"path": path}, err)
	e.Store = store
	return e
}

// AsStoreError unwraps err into a StoreError. Anything else is reported
// as a render error.
func AsStoreError(err error) *StoreError {
	var se *StoreError
	if errors.As(err, &se) {
		return se
	}
	return newStoreError(ErrorRender, "unexpected error", nil, err)
}

// IsErrorType reports whether err is a StoreError of type t
func IsErrorType(err error, t ErrorType) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Type == t
}
