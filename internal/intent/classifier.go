// Package intent classifies chat messages into coarse topical intents and
// selects an in-character canned reply for a classified intent.
//
// Classification is keyword based: an ordered list of word-boundary keyword
// rules is evaluated against the lower-cased message and the first rule that
// matches decides the intent. Reply selection is a uniform random pick from
// the candidate set for the intent; greetings, farewells and the default
// intent have one candidate set per warmth tier.
package intent

import "github.com/MrWong99/mikubot/internal/rules"

// Tag identifies a classified intent.
type Tag string

// Intent tags in classification order.
const (
	Greeting   Tag = "greeting"
	Farewell   Tag = "farewell"
	Identity   Tag = "identity"
	History    Tag = "history"
	Music      Tag = "music"
	Study      Tag = "study"
	Sisters    Tag = "sisters"
	Food       Tag = "food"
	Compliment Tag = "compliment"
	Love       Tag = "love"
	Sadness    Tag = "sadness"
	Happiness  Tag = "happiness"
	Question   Tag = "question"
	Help       Tag = "help"
	Thanks     Tag = "thanks"
	Default    Tag = "default"
)

// AllTags lists every tag in classification order, ending with [Default].
var AllTags = []Tag{
	Greeting, Farewell, Identity, History, Music, Study, Sisters, Food,
	Compliment, Love, Sadness, Happiness, Question, Help, Thanks, Default,
}

// Tiered reports whether replies for tag vary by warmth tier.
func (t Tag) Tiered() bool {
	return t == Greeting || t == Farewell || t == Default
}

// Classifier maps a message to a [Tag]. It is stateless and safe for
// concurrent use.
type Classifier struct {
	ev *rules.Evaluator[Tag]
}

// NewClassifier returns a Classifier with the built-in rule table.
//
// Order matters: "amazing" is both a compliment and happiness keyword and
// resolves to [Compliment]; "hi?" resolves to [Greeting], not [Question].
func NewClassifier() *Classifier {
	return &Classifier{ev: rules.NewEvaluator(Default,
		rules.Rule[Tag]{Tag: Greeting, Match: rules.Words("hi", "hello", "hey", "sup", "yo", "greetings", "namaste", "hii")},
		rules.Rule[Tag]{Tag: Farewell, Match: rules.Words("bye", "goodbye", "see you", "later", "gtg", "gotta go", "alvida", "bye bye")},
		rules.Rule[Tag]{Tag: Identity, Match: rules.Words("who are you", "your name", "about you", "kaun ho", "naam kya")},
		rules.Rule[Tag]{Tag: History, Match: rules.Words("history", "historical", "sengoku", "samurai", "warrior", "feudal", "nobunaga", "tokugawa", "itihaas")},
		rules.Rule[Tag]{Tag: Music, Match: rules.Words("music", "song", "headphones", "listen", "audio", "sound", "playlist", "gaana", "sangeet")},
		rules.Rule[Tag]{Tag: Study, Match: rules.Words("study", "learn", "school", "exam", "test", "homework", "class", "grade", "padhai")},
		rules.Rule[Tag]{Tag: Sisters, Match: rules.Words("sister", "sisters", "ichika", "nino", "yotsuba", "itsuki", "quintuplet", "family", "behen")},
		rules.Rule[Tag]{Tag: Food, Match: rules.Words("food", "eat", "hungry", "lunch", "dinner", "breakfast", "cook", "matcha", "drink", "khana", "bhook")},
		rules.Rule[Tag]{Tag: Compliment, Match: rules.Words("beautiful", "pretty", "cute", "smart", "intelligent", "amazing", "awesome", "cool", "sundar", "khubsurat")},
		rules.Rule[Tag]{Tag: Love, Match: rules.Words("love", "like you", "feelings", "heart", "crush", "pyar", "dil")},
		rules.Rule[Tag]{Tag: Sadness, Match: rules.Words("sad", "depressed", "unhappy", "lonely", "alone", "cry", "udas", "dukhi")},
		rules.Rule[Tag]{Tag: Happiness, Match: rules.Words("happy", "excited", "great", "amazing", "wonderful", "fantastic", "khush", "mast")},
		rules.Rule[Tag]{Tag: Question, Match: rules.TrailingQuestion()},
		rules.Rule[Tag]{Tag: Help, Match: rules.Words("help", "assist", "support", "need you", "madad")},
		rules.Rule[Tag]{Tag: Thanks, Match: rules.Words("thank", "thanks", "thx", "appreciate", "shukriya", "dhanyavaad")},
	)}
}

// Classify returns the intent of text. Empty or unrecognised text yields
// [Default].
func (c *Classifier) Classify(text string) Tag {
	return c.ev.Evaluate(text)
}
