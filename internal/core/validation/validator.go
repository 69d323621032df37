// Package validation holds the argument checks applied to tool calls before
// any upstream request is made.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

const DefaultDatasetIDPattern = `^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`

type Rules struct {
	DatasetIDPattern string
	MaxQueryLength   int
	MaxTerms         int
	MaxTermLength    int
}

func DefaultRules() Rules {
	return Rules{
		DatasetIDPattern: DefaultDatasetIDPattern,
		MaxQueryLength:   256,
		MaxTerms:         10,
		MaxTermLength:    128,
	}
}

func (r Rules) normalize() Rules {
	out := r
	def := DefaultRules()
	if strings.TrimSpace(out.DatasetIDPattern) == "" {
		out.DatasetIDPattern = def.DatasetIDPattern
	}
	if out.MaxQueryLength <= 0 {
		out.MaxQueryLength = def.MaxQueryLength
	}
	if out.MaxTerms <= 0 {
		out.MaxTerms = def.MaxTerms
	}
	if out.MaxTermLength <= 0 {
		out.MaxTermLength = def.MaxTermLength
	}
	return out
}

// Error is a rejected argument. It matches domain.ErrInvalidInput.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Detail() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == domain.ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &Error{Field: field, Message: fmt.Sprintf(format, args...)}
}

type Validator struct {
	rules     Rules
	datasetID *regexp.Regexp
}

func New(rules Rules) (*Validator, error) {
	rules = rules.normalize()
	// The pattern must cover the whole identifier.
	re, err := regexp.Compile(`^(?:` + rules.DatasetIDPattern + `)$`)
	if err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "compile dataset id pattern", err)
	}
	return &Validator{rules: rules, datasetID: re}, nil
}

func (v *Validator) Rules() Rules {
	return v.rules
}

func (v *Validator) DatasetID(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid("dataset_id", "dataset_id is required")
	}
	if !v.datasetID.MatchString(value) {
		return "", invalid("dataset_id", "dataset_id contains unsupported characters")
	}
	return value, nil
}

func (v *Validator) Query(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", invalid("query", "Query text is required.")
	}
	if utf8.RuneCountInString(value) > v.rules.MaxQueryLength {
		return "", invalid("query", "Query exceeds maximum length of %d characters.", v.rules.MaxQueryLength)
	}
	return value, nil
}

func (v *Validator) Terms(values []string) ([]string, error) {
	terms := SanitizeTerms(values)
	if len(terms) == 0 {
		return nil, invalid("terms", "At least one term is required.")
	}
	if len(terms) > v.rules.MaxTerms {
		return nil, invalid("terms", "A maximum of %d terms is supported.", v.rules.MaxTerms)
	}
	for _, term := range terms {
		if utf8.RuneCountInString(term) > v.rules.MaxTermLength {
			return nil, invalid("terms", "Term %q exceeds maximum length of %d characters.", term, v.rules.MaxTermLength)
		}
	}
	return terms, nil
}

// TopK rejects non-positive values and caps the rest at domain.MaxTopK.
func (v *Validator) TopK(value int) (int, error) {
	if value <= 0 {
		return 0, invalid("top_k", "top_k must be greater than zero")
	}
	if value > domain.MaxTopK {
		return domain.MaxTopK, nil
	}
	return value, nil
}

// SanitizeTerms trims every term and drops the empty ones.
func SanitizeTerms(values []string) []string {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}
