package validation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

func newTestValidator(t *testing.T, rules Rules) *Validator {
	t.Helper()
	v, err := New(rules)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return v
}

func TestDatasetIDRejectsSpacesAndBang(t *testing.T) {
	v := newTestValidator(t, DefaultRules())

	for _, id := range []string{"bad id", "bad!", "bad id!", " ", "-leading"} {
		_, err := v.DatasetID(id)
		if err == nil {
			t.Fatalf("expected %q to be rejected", id)
		}
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input kind for %q, got %v", id, err)
		}
	}
}

func TestDatasetIDAcceptsAndTrims(t *testing.T) {
	v := newTestValidator(t, DefaultRules())

	got, err := v.DatasetID("  abc-123_DEF ")
	if err != nil {
		t.Fatalf("DatasetID() error = %v", err)
	}
	if got != "abc-123_DEF" {
		t.Fatalf("expected trimmed id, got %q", got)
	}

	if _, err := v.DatasetID("a" + strings.Repeat("b", 127)); err != nil {
		t.Fatalf("expected 128 character id to pass, got %v", err)
	}
	if _, err := v.DatasetID("a" + strings.Repeat("b", 128)); err == nil {
		t.Fatalf("expected 129 character id to be rejected")
	}
}

func TestDatasetIDPatternIsAnchored(t *testing.T) {
	v := newTestValidator(t, Rules{DatasetIDPattern: `[a-z]+`})

	if _, err := v.DatasetID("abc"); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
	if _, err := v.DatasetID("abc123"); err == nil {
		t.Fatalf("expected partial match to be rejected")
	}
}

func TestNewRejectsBrokenPattern(t *testing.T) {
	_, err := New(Rules{DatasetIDPattern: `([a-z`})
	if !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestQueryLimits(t *testing.T) {
	v := newTestValidator(t, Rules{MaxQueryLength: 5})

	if _, err := v.Query("   "); err == nil {
		t.Fatalf("expected blank query to be rejected")
	}
	if _, err := v.Query("too-long-query"); err == nil {
		t.Fatalf("expected long query to be rejected")
	}
	got, err := v.Query("  term ")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got != "term" {
		t.Fatalf("expected trimmed query, got %q", got)
	}
	if _, err := v.Query("éééé"); err != nil {
		t.Fatalf("expected multibyte query within limit, got %v", err)
	}
}

func TestSanitizeTerms(t *testing.T) {
	got := SanitizeTerms([]string{" foo ", "", "bar"})
	if !reflect.DeepEqual(got, []string{"foo", "bar"}) {
		t.Fatalf("unexpected sanitized terms: %#v", got)
	}
}

func TestTermsLimits(t *testing.T) {
	v := newTestValidator(t, Rules{MaxTerms: 2, MaxTermLength: 4})

	if _, err := v.Terms([]string{" ", ""}); err == nil {
		t.Fatalf("expected empty term list to be rejected")
	}
	if _, err := v.Terms([]string{"a", "b", "c"}); err == nil {
		t.Fatalf("expected too many terms to be rejected")
	}
	if _, err := v.Terms([]string{"abcde"}); err == nil {
		t.Fatalf("expected long term to be rejected")
	}
	got, err := v.Terms([]string{" ab ", "", "cd"})
	if err != nil {
		t.Fatalf("Terms() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"ab", "cd"}) {
		t.Fatalf("unexpected terms: %#v", got)
	}
}

func TestTopK(t *testing.T) {
	v := newTestValidator(t, DefaultRules())

	for _, bad := range []int{0, -3} {
		if _, err := v.TopK(bad); err == nil {
			t.Fatalf("expected top_k=%d to be rejected", bad)
		}
	}
	if got, _ := v.TopK(5000); got != domain.MaxTopK {
		t.Fatalf("expected cap at %d, got %d", domain.MaxTopK, got)
	}
	if got, _ := v.TopK(7); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}
