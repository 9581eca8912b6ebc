package deepseek

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain json", `{"phase":"peak"}`, `{"phase":"peak"}`},
		{"json fence", "```json\n{\"phase\":\"peak\"}\n```", `{"phase":"peak"}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"leading whitespace", "  \n```json\n{}\n```  ", `{}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseJudgment(t *testing.T) {
	phase, confidence, reasoning, err := parseJudgment(`{"phase":"trough","confidence":0.65,"reasoning":"declining coverage"}`)
	if err != nil {
		t.Fatalf("parseJudgment: %v", err)
	}
	if phase != PhaseTrough {
		t.Errorf("phase = %s, want trough", phase)
	}
	if confidence != 0.65 {
		t.Errorf("confidence = %v, want 0.65", confidence)
	}
	if reasoning != "declining coverage" {
		t.Errorf("reasoning = %q", reasoning)
	}
}

func TestParseJudgmentFenced(t *testing.T) {
	raw := "```json\n{\"phase\":\"plateau\",\"confidence\":0.9,\"reasoning\":\"stable adoption\"}\n```"
	phase, _, _, err := parseJudgment(raw)
	if err != nil {
		t.Fatalf("parseJudgment: %v", err)
	}
	if phase != PhasePlateau {
		t.Errorf("phase = %s, want plateau", phase)
	}
}

func TestParseJudgmentRejections(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		field string // expected ValidationError field, empty for ParseError
	}{
		{"not json", "the phase is peak", ""},
		{"unknown phase", `{"phase":"ascending","confidence":0.5,"reasoning":"r"}`, "phase"},
		{"missing confidence", `{"phase":"peak","reasoning":"r"}`, "confidence"},
		{"confidence above range", `{"phase":"peak","confidence":1.5,"reasoning":"r"}`, "confidence"},
		{"confidence below range", `{"phase":"peak","confidence":-0.1,"reasoning":"r"}`, "confidence"},
		{"blank reasoning", `{"phase":"peak","confidence":0.5,"reasoning":"  "}`, "reasoning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := parseJudgment(tt.raw)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.field == "" {
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("err = %T, want *ParseError", err)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("err = %T, want *ValidationError", err)
			}
			if validationErr.Field != tt.field {
				t.Errorf("field = %q, want %q", validationErr.Field, tt.field)
			}
		})
	}
}

func TestParseJudgmentZeroConfidenceIsValid(t *testing.T) {
	_, confidence, _, err := parseJudgment(`{"phase":"peak","confidence":0,"reasoning":"r"}`)
	if err != nil {
		t.Fatalf("parseJudgment: %v", err)
	}
	if confidence != 0 {
		t.Errorf("confidence = %v, want 0", confidence)
	}
}

func TestParseTerms(t *testing.T) {
	terms, err := parseTerms(`{"terms":["a","b","c"]}`)
	if err != nil {
		t.Fatalf("parseTerms: %v", err)
	}
	if len(terms) != 3 {
		t.Errorf("terms = %v, want 3 entries", terms)
	}
}

func TestParseTermsRejections(t *testing.T) {
	for _, raw := range []string{"not json", `{"terms":[]}`, `{}`} {
		var genErr *GenerationError
		if _, err := parseTerms(raw); !errors.As(err, &genErr) {
			t.Errorf("parseTerms(%q) err = %v, want *GenerationError", raw, err)
		}
	}
}
