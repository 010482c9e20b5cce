package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is matches domain errors by code, so wrapped or detailed errors still
// compare equal to the sentinel values below via errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound               = NewDomainError("NOT_FOUND", "Resource not found")
	ErrValidation             = NewDomainError("VALIDATION_FAILED", "Invalid input provided")
	ErrInvalidState           = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrPersistenceUnavailable = NewDomainError("STORE_UNAVAILABLE", "Persistence store did not respond")
	ErrMalformedRecord        = NewDomainError("MALFORMED_RECORD", "Stored record could not be normalized")
	ErrDuplicate              = NewDomainError("DUPLICATE_KEY", "Resource already exists")
)

// NewValidationError creates a validation error carrying the first violated
// invariant. errors.Is(err, ErrValidation) holds for the result.
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrValidation.Code, message)
}

// NewMalformedRecordError creates a malformed-record error with detail.
func NewMalformedRecordError(message string) *DomainError {
	return NewDomainError(ErrMalformedRecord.Code, message)
}
