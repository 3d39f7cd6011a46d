// Package emotion maps a user message to the media category used to pick an
// accompanying sticker.
package emotion

import "github.com/MrWong99/mikubot/internal/rules"

// Category is a media category name. Values match the keys of the sticker
// table.
type Category string

const (
	Greeting Category = "greeting"
	Happy    Category = "happy"
	Annoyed  Category = "annoyed"
	Shy      Category = "shy"
	Studying Category = "studying"
	Music    Category = "music"
	Thinking Category = "thinking"
	Cool     Category = "cool"
)

// All lists every category in detection order; [Cool] is the fallback.
var All = []Category{Greeting, Happy, Annoyed, Shy, Studying, Music, Thinking, Cool}

// Detector classifies messages into categories. It is stateless and safe for
// concurrent use.
type Detector struct {
	ev *rules.Evaluator[Category]
}

// NewDetector returns a Detector with the built-in rule table.
func NewDetector() *Detector {
	return &Detector{ev: rules.NewEvaluator(Cool,
		rules.Rule[Category]{Tag: Greeting, Match: rules.Words("hi", "hello", "hey", "namaste")},
		rules.Rule[Category]{Tag: Happy, Match: rules.Words("happy", "excited", "great", "good", "nice", "khush", "mast", "acha")},
		rules.Rule[Category]{Tag: Annoyed, Match: rules.Words("annoying", "irritating", "stop", "bakwas", "chup")},
		rules.Rule[Category]{Tag: Shy, Match: rules.Words("cute", "beautiful", "pretty", "love", "pyar")},
		rules.Rule[Category]{Tag: Studying, Match: rules.Words("study", "exam", "test", "history", "padhai")},
		rules.Rule[Category]{Tag: Music, Match: rules.Words("music", "song", "listen", "gaana")},
		rules.Rule[Category]{Tag: Thinking, Match: rules.TrailingQuestion()},
	)}
}

// Detect returns the category for message. The generated reply is accepted
// so callers can pass both sides of an exchange, but only the message is
// inspected.
func (d *Detector) Detect(message, reply string) Category {
	_ = reply
	return d.ev.Evaluate(message)
}
