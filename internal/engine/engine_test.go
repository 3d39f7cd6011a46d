package engine_test

import (
	"testing"

	"github.com/MrWong99/mikubot/internal/engine"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    engine.Kind
		wantErr bool
	}{
		{"", engine.KindRuleBased, false},
		{"rule-based", engine.KindRuleBased, false},
		{"local", engine.KindRuleBased, false},
		{"delegate", engine.KindDelegate, false},
		{"groq", engine.KindDelegate, false},
		{"cohere", engine.KindDelegate, false},
		{"huggingface", "", true},
	}
	for _, tc := range tests {
		got, err := engine.ParseKind(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseKind(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
