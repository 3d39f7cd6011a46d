// Package rules provides an ordered, first-match-wins text classifier.
//
// An [Evaluator] walks its rules in declaration order and returns the tag of
// the first rule whose [Matcher] accepts the input, or the fallback tag when
// none do. Both the intent classifier and the emotion detector are built on
// it; the only difference between them is the rule table.
package rules

import (
	"log/slog"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single regex evaluation. Keyword alternations finish
// in microseconds; the limit only guards against pathological input.
const MatchTimeout = 100 * time.Millisecond

// Matcher reports whether a rule applies to the (already lower-cased) text.
type Matcher interface {
	Match(text string) bool
}

// MatcherFunc adapts a plain function to [Matcher].
type MatcherFunc func(text string) bool

// Match calls f(text).
func (f MatcherFunc) Match(text string) bool { return f(text) }

// Rule pairs a tag with the matcher that selects it.
type Rule[T any] struct {
	Tag   T
	Match Matcher
}

// Evaluator evaluates an ordered rule list. It holds no mutable state and is
// safe for concurrent use.
type Evaluator[T any] struct {
	rules    []Rule[T]
	fallback T
}

// NewEvaluator returns an Evaluator over a copy of rules.
func NewEvaluator[T any](fallback T, rules ...Rule[T]) *Evaluator[T] {
	rs := make([]Rule[T], len(rules))
	copy(rs, rules)
	return &Evaluator[T]{rules: rs, fallback: fallback}
}

// Evaluate lower-cases text and returns the tag of the first matching rule,
// or the fallback.
func (e *Evaluator[T]) Evaluate(text string) T {
	lower := strings.ToLower(text)
	for _, r := range e.rules {
		if r.Match.Match(lower) {
			return r.Tag
		}
	}
	return e.fallback
}

// Len returns the number of rules, excluding the fallback.
func (e *Evaluator[T]) Len() int { return len(e.rules) }

// ── Matchers ─────────────────────────────────────────────────────────────────

type wordMatcher struct {
	re *regexp2.Regexp
}

// Words returns a Matcher that accepts text containing any of alts as a whole
// word (or phrase). Word boundaries follow Unicode semantics: letters of any
// script, combining marks, digits and connectors all count as word characters,
// so Hinglish text in Devanagari behaves like Latin text.
//
// Alternatives are matched literally. Words panics if alts is empty.
func Words(alts ...string) Matcher {
	if len(alts) == 0 {
		panic("rules: Words requires at least one alternative")
	}
	quoted := make([]string, len(alts))
	for i, a := range alts {
		quoted[i] = regexp2.Escape(strings.ToLower(a))
	}
	re := regexp2.MustCompile(`\b(?:`+strings.Join(quoted, "|")+`)\b`, regexp2.IgnoreCase)
	re.MatchTimeout = MatchTimeout
	return &wordMatcher{re: re}
}

// Match implements [Matcher]. A regex engine error (timeout) counts as no match.
func (m *wordMatcher) Match(text string) bool {
	ok, err := m.re.MatchString(text)
	if err != nil {
		slog.Debug("rules: word match aborted", "pattern", m.re.String(), "err", err)
		return false
	}
	return ok
}

// String returns the compiled pattern.
func (m *wordMatcher) String() string { return m.re.String() }

// TrailingQuestion returns a Matcher that accepts text whose trimmed form ends
// with a question mark.
func TrailingQuestion() Matcher {
	return MatcherFunc(func(text string) bool {
		return strings.HasSuffix(strings.TrimSpace(text), "?")
	})
}
