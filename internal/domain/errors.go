/**
 * @description
 * Structured error taxonomy surfaced by the request layer. Each error
 * carries a stable name the client can branch on, an HTTP-equivalent
 * status, and a retryable hint.
 */
package domain

import "fmt"

// ServiceError is the structured error returned inside response envelopes.
type ServiceError struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	Retryable bool   `json:"retryable"`
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// NewItemNotFound reports a record that does not exist. Non-retryable.
func NewItemNotFound(message string) *ServiceError {
	return &ServiceError{Name: "ItemNotFound", Message: message, Status: 404, Retryable: false}
}

// NewItemAlreadyExists reports a conditional create that found an existing
// record. Non-retryable; surfaced distinctly so the client can branch.
func NewItemAlreadyExists(message string) *ServiceError {
	return &ServiceError{Name: "ItemAlreadyExists", Message: message, Status: 409, Retryable: false}
}

// NewValidationException reports malformed or insufficient input.
func NewValidationException(message string) *ServiceError {
	return &ServiceError{Name: "ValidationException", Message: message, Status: 400, Retryable: false}
}

// NewInternalError wraps an unexpected fault as a retryable 500-equivalent.
func NewInternalError(err error) *ServiceError {
	return &ServiceError{Name: "Internal Server Error", Message: err.Error(), Status: 500, Retryable: true}
}
