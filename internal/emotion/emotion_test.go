package emotion_test

import (
	"testing"

	"github.com/MrWong99/mikubot/internal/emotion"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	d := emotion.NewDetector()
	tests := []struct {
		message string
		want    emotion.Category
	}{
		{"hi", emotion.Greeting},
		{"Namaste Miku", emotion.Greeting},
		{"that was a good day", emotion.Happy},
		{"acha", emotion.Happy},
		{"stop it", emotion.Annoyed},
		{"chup", emotion.Annoyed},
		{"you're cute", emotion.Shy},
		{"I love this", emotion.Shy},
		{"exam kal hai", emotion.Studying},
		{"tumhe history pasand hai?", emotion.Studying},
		{"listen to this", emotion.Music},
		{"what is that?", emotion.Thinking},
		{"what is that?  \n", emotion.Thinking},
		{"ok", emotion.Cool},
		{"", emotion.Cool},
		// First match wins.
		{"hi, good morning", emotion.Greeting},
		{"good song", emotion.Happy},
		{"music?", emotion.Music},
	}
	for _, tc := range tests {
		t.Run(tc.message, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tc.message, "irrelevant"); got != tc.want {
				t.Errorf("Detect(%q) = %q, want %q", tc.message, got, tc.want)
			}
		})
	}
}

func TestDetect_IgnoresReply(t *testing.T) {
	t.Parallel()

	d := emotion.NewDetector()
	if got := d.Detect("ok", "hello, I love music?"); got != emotion.Cool {
		t.Errorf("Detect = %q, want cool", got)
	}
}

func TestDetect_AlwaysReturnsKnownCategory(t *testing.T) {
	t.Parallel()

	d := emotion.NewDetector()
	known := map[emotion.Category]bool{}
	for _, c := range emotion.All {
		known[c] = true
	}
	for _, m := range []string{"x", "??", "Hello?", "बहुत अच्छा", "stop!!", "\t"} {
		if got := d.Detect(m, ""); !known[got] {
			t.Errorf("Detect(%q) = %q, not a known category", m, got)
		}
	}
}
