package classifier

import "fmt"

// ErrorType is the semantic failure category reported in error output. The
// values name where in the pipeline the failure occurred, so callers can make
// retry decisions without parsing messages.
type ErrorType string

const (
	ErrorTypePromptFileRead        ErrorType = "PromptFileReadError"
	ErrorTypeDomainFetch           ErrorType = "DomainFetchError"
	ErrorTypeDomainFetchTimeout    ErrorType = "DomainFetchTimeoutError"
	ErrorTypeHTMLParse             ErrorType = "HtmlParseError"
	ErrorTypeOllamaAPIConnection   ErrorType = "OllamaApiConnectionError"
	ErrorTypeOllamaAPITimeout      ErrorType = "OllamaApiTimeoutError"
	ErrorTypeOllamaAPI             ErrorType = "OllamaApiError"
	ErrorTypeOllamaResponseParse   ErrorType = "OllamaResponseParseError"
	ErrorTypeClassificationParse   ErrorType = "ClassificationParseError"
	ErrorTypeMetadataSerialization ErrorType = "MetadataSerializationError"
)

// ClassifyError pairs a semantic error type with a human-readable message.
type ClassifyError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ClassifyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause.
func (e *ClassifyError) Unwrap() error {
	return e.Err
}

// newClassifyError wraps a cause under a semantic error type.
func newClassifyError(errorType ErrorType, err error) *ClassifyError {
	return &ClassifyError{
		Type:    errorType,
		Message: err.Error(),
		Err:     err,
	}
}
