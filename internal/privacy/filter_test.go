package privacy

import (
	"reflect"
	"strings"
	"testing"
)

func TestDetectCleanText(t *testing.T) {
	inputs := []string{
		"",
		"What documents do I need for the application?",
		"My EFC was 4500 last year",
		"Deadline is 06-30-2026",
	}
	for _, in := range inputs {
		res := Detect(in)
		if res.HasPII {
			t.Errorf("Detect(%q) flagged clean text, types %v", in, res.Types)
		}
		if res.Sanitized != in {
			t.Errorf("Detect(%q) changed clean text to %q", in, res.Sanitized)
		}
		if len(res.Types) != 0 {
			t.Errorf("Detect(%q) returned types %v for clean text", in, res.Types)
		}
	}
}

func TestDetectSingleTypes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		typ     string
		redacts string
	}{
		{"ssn", "my ssn is 123-45-6789 ok", "ssn", "[SSN_REDACTED]"},
		{"email", "reach me at student@example.edu please", "email", "[EMAIL_REDACTED]"},
		{"phone", "call 555-123-4567 anytime", "phone", "[PHONE_REDACTED]"},
		{"phone paren", "call (555) 123-4567 anytime", "phone", "[PHONE_REDACTED]"},
		{"card", "card 4111-1111-1111-1111 on file", "credit_card", "[CARD_REDACTED]"},
		{"id", "driver license 123456789", "id_number", "[ID_REDACTED]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Detect(tt.input)
			if !res.HasPII {
				t.Fatalf("Detect(%q) did not flag PII", tt.input)
			}
			if !strings.Contains(res.Sanitized, tt.redacts) {
				t.Errorf("sanitized %q missing %s", res.Sanitized, tt.redacts)
			}
			found := false
			for _, typ := range res.Types {
				if typ == tt.typ {
					found = true
				}
			}
			if !found {
				t.Errorf("types %v missing %s", res.Types, tt.typ)
			}
		})
	}
}

// An SSN must keep its own tag even though it would also match looser
// digit patterns.
func TestDetectSSNBeforeGenericDigits(t *testing.T) {
	res := Detect("ssn 123-45-6789")
	if !strings.Contains(res.Sanitized, "[SSN_REDACTED]") {
		t.Errorf("expected SSN tag, got %q", res.Sanitized)
	}
	for _, typ := range res.Types {
		if typ == "id_number" {
			t.Errorf("SSN misclassified as id_number: %v", res.Types)
		}
	}
}

func TestDetectCumulative(t *testing.T) {
	res := Detect("I am student@example.edu, ssn 123-45-6789, call 555-123-4567")
	if !res.HasPII {
		t.Fatal("expected PII")
	}
	want := []string{"email", "phone", "ssn"}
	if !reflect.DeepEqual(res.Types, want) {
		t.Errorf("types = %v, want %v", res.Types, want)
	}
	for _, tag := range []string{"[EMAIL_REDACTED]", "[SSN_REDACTED]", "[PHONE_REDACTED]"} {
		if !strings.Contains(res.Sanitized, tag) {
			t.Errorf("sanitized %q missing %s", res.Sanitized, tag)
		}
	}
	// No raw PII survives.
	for _, raw := range []string{"123-45-6789", "student@example.edu", "555-123-4567"} {
		if strings.Contains(res.Sanitized, raw) {
			t.Errorf("raw PII %q survived: %q", raw, res.Sanitized)
		}
	}
}

func TestDetectDeterministic(t *testing.T) {
	in := "ssn 123-45-6789 and card 4111 1111 1111 1111"
	first := Detect(in)
	for i := 0; i < 5; i++ {
		if got := Detect(in); !reflect.DeepEqual(got, first) {
			t.Fatalf("Detect not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestWarnings(t *testing.T) {
	if w := Warnings(nil); w != nil {
		t.Errorf("Warnings(nil) = %v", w)
	}

	w := Warnings([]string{"ssn", "email"})
	if len(w) != 2 {
		t.Fatalf("expected 2 warnings, got %d", len(w))
	}
	if !strings.Contains(w[0], "Social Security") {
		t.Errorf("unexpected ssn warning: %q", w[0])
	}

	// Unknown types get a generic notice instead of being dropped.
	w = Warnings([]string{"passport"})
	if len(w) != 1 || !strings.Contains(w[0], "Personal information") {
		t.Errorf("unexpected fallback warning: %v", w)
	}
}
