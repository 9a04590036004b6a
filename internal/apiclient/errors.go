package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// GenericTransportMessage is shown to users when the API could not be reached
const GenericTransportMessage = "Unable to reach the finance service. Please try again."

// ErrorKind classifies an upstream error response
type ErrorKind string

const (
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindBusinessRule  ErrorKind = "business_rule"
	KindServer        ErrorKind = "server"
)

// APIError is a non-2xx response of the remote API. Message is the server's
// human-readable message and is meant to be shown verbatim.
type APIError struct {
	StatusCode int
	Message    string
	Errors     map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Message)
}

// Kind classifies the error by status code
func (e *APIError) Kind() ErrorKind {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return KindAuthorization
	case e.StatusCode == http.StatusNotFound:
		return KindNotFound
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return KindBusinessRule
	default:
		return KindServer
	}
}

// TransportError wraps network and decoding failures
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UserMessage is the generic message shown for transport failures
func (e *TransportError) UserMessage() string {
	return GenericTransportMessage
}

// AsAPIError unwraps an upstream error response
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsTransport reports whether err is a network or decoding failure
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// IsNotFound reports whether the API answered 404
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind() == KindNotFound
}

// parseAPIError builds an APIError from an error body. The API sends
// {"message": "...", "errors": {"field": ["..."]}}; field messages may also be plain strings.
func parseAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var body struct {
		Message string                     `json:"message"`
		Error   string                     `json:"error"`
		Detail  string                     `json:"detail"`
		Errors  map[string]json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		switch {
		case body.Message != "":
			apiErr.Message = body.Message
		case body.Detail != "":
			apiErr.Message = body.Detail
		case body.Error != "":
			apiErr.Message = body.Error
		}
		apiErr.Errors = flattenFieldErrors(body.Errors)
	}

	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func flattenFieldErrors(fields map[string]json.RawMessage) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for field, raw := range fields {
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil {
			if len(list) > 0 {
				out[field] = strings.Join(list, " ")
			}
			continue
		}
		var single string
		if err := json.Unmarshal(raw, &single); err == nil && single != "" {
			out[field] = single
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// FieldNames returns the names of the fields with errors, sorted
func (e *APIError) FieldNames() []string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
