package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Result discriminator values for the stdout tagged union.
const (
	ResultClassified = "classified"
	ResultError      = "error"
)

var (
	// ErrEmptyOutput is returned when the classifier produced no stdout.
	ErrEmptyOutput = errors.New("classifier produced no output")

	// ErrUnknownResult is returned for an unrecognized result tag.
	ErrUnknownResult = errors.New("unknown classifier result")
)

type (
	// Classification is the LLM's verdict.
	Classification struct {
		IsMatchingSite bool    `json:"is_matching_site"`
		Confidence     float64 `json:"confidence"`
	}

	// Metadata describes how a verdict was produced. HTTPStatus is zero in
	// error output, where only model and prompt hash are known.
	Metadata struct {
		HTTPStatus int    `json:"http_status,omitempty"`
		Model      string `json:"model"`
		PromptHash string `json:"prompt_hash"`
	}

	// ErrorInfo is the structured failure carried by error output.
	ErrorInfo struct {
		ErrorType ErrorType `json:"error_type"`
		Message   string    `json:"message"`
	}

	// Output is the single JSON document the classifier writes to stdout,
	// a tagged union discriminated by Result: "classified" carries
	// Classification and Metadata, "error" carries Error and optionally
	// Metadata.
	Output struct {
		Domain         string          `json:"domain"`
		Result         string          `json:"result"`
		Classification *Classification `json:"classification,omitempty"`
		Error          *ErrorInfo      `json:"error,omitempty"`
		Metadata       *Metadata       `json:"metadata,omitempty"`
	}
)

// NewClassifiedOutput builds the success variant.
func NewClassifiedOutput(domain string, classification Classification, metadata Metadata) *Output {
	return &Output{
		Domain:         domain,
		Result:         ResultClassified,
		Classification: &classification,
		Metadata:       &metadata,
	}
}

// NewErrorOutput builds the error variant. metadata may be nil when the
// failure happened before the prompt was loaded.
func NewErrorOutput(domain string, classifyErr *ClassifyError, metadata *Metadata) *Output {
	return &Output{
		Domain: domain,
		Result: ResultError,
		Error: &ErrorInfo{
			ErrorType: classifyErr.Type,
			Message:   classifyErr.Message,
		},
		Metadata: metadata,
	}
}

// Encode serializes the output document with indentation, matching what the
// binary prints on stdout.
func (o *Output) Encode() ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}

// DecodeOutput parses classifier stdout. The result tag is read first and
// decides which shape is enforced; decoding never guesses between variants.
func DecodeOutput(data []byte) (*Output, error) {
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}

	var tag struct {
		Result string `json:"result"`
	}

	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("failed to parse classifier output: %w", err)
	}

	var output Output
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse classifier output: %w", err)
	}

	switch tag.Result {
	case ResultClassified:
		if output.Classification == nil || output.Metadata == nil {
			return nil, fmt.Errorf("classified output missing classification or metadata")
		}
	case ResultError:
		if output.Error == nil {
			return nil, fmt.Errorf("error output missing error info")
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResult, tag.Result)
	}

	return &output, nil
}
