package intent

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/mikubot/internal/warmth"
)

// ErrEmptyCandidates is returned when a reachable (tag, tier) pair has no
// reply candidates.
var ErrEmptyCandidates = errors.New("intent: empty candidate set")

// Replies holds the candidate reply sets. Tiered tags carry one set per
// warmth tier (index 0 through [warmth.MaxTier]); all other tags carry one
// flat set.
type Replies struct {
	Tiered map[Tag][][]string `yaml:"tiered"`
	Flat   map[Tag][]string   `yaml:"flat"`
}

// Validate reports every reachable (tag, tier) pair whose candidate set is
// missing or empty, joined into one error.
func (r Replies) Validate() error {
	var errs []error
	for _, tag := range AllTags {
		if tag.Tiered() {
			sets := r.Tiered[tag]
			if len(sets) != warmth.MaxTier+1 {
				errs = append(errs, fmt.Errorf("%w: %s has %d tiers, want %d", ErrEmptyCandidates, tag, len(sets), warmth.MaxTier+1))
				continue
			}
			for tier, set := range sets {
				if len(set) == 0 {
					errs = append(errs, fmt.Errorf("%w: %s tier %d", ErrEmptyCandidates, tag, tier))
				}
			}
			continue
		}
		if len(r.Flat[tag]) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrEmptyCandidates, tag))
		}
	}
	for tag := range r.Tiered {
		if !slices.Contains(AllTags, tag) || !tag.Tiered() {
			errs = append(errs, fmt.Errorf("intent: %q is not a tiered tag", tag))
		}
	}
	for tag := range r.Flat {
		if !slices.Contains(AllTags, tag) || tag.Tiered() {
			errs = append(errs, fmt.Errorf("intent: %q is not a flat tag", tag))
		}
	}
	return errors.Join(errs...)
}

// LoadReplies decodes a YAML reply override from r and merges it over
// [DefaultReplies]. Tags absent from the document keep their built-in
// candidates. The merged result is validated.
func LoadReplies(r io.Reader) (Replies, error) {
	var override Replies
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil && !errors.Is(err, io.EOF) {
		return Replies{}, fmt.Errorf("intent: decode replies: %w", err)
	}

	merged := DefaultReplies()
	maps.Copy(merged.Tiered, override.Tiered)
	maps.Copy(merged.Flat, override.Flat)
	if err := merged.Validate(); err != nil {
		return Replies{}, err
	}
	return merged, nil
}

// DefaultReplies returns a fresh copy of the built-in reply sets.
func DefaultReplies() Replies {
	return Replies{
		Tiered: map[Tag][][]string{
			Greeting: {
				{"...Hello.", "Oh, it's you.", "Hi... kya chahiye?", "Tum kaun ho?"},
				{"Hi yaar.", "Hey there.", "Hello.", "Kya haal hai?"},
				{"Hey! How are you?", "Hi! Kaisa chal raha hai?", "Hello! Good to see you."},
				{"Hey! I was just thinking about you yaar.", "Hi! Tumse baat karke acha lagta hai.", "Hello! Kaise ho?"},
			},
			Farewell: {
				{"...See you.", "Bye.", "Later.", "Chalo bye."},
				{"See you later yaar.", "Take care.", "Bye.", "Milte hain."},
				{"See you soon!", "Take care of yourself.", "Goodbye yaar!", "Dhyan rakhna."},
				{"I'll miss talking to you. See you soon!", "Take care! Talk to you later yaar!", "Bye! Jaldi aana!"},
			},
			Default: {
				{"...I see.", "Is that so?", "Hmm...", "...Okay.", "Whatever.", "...Theek hai.", "Acha."},
				{"I see what you mean.", "That's interesting yaar.", "Hmm, samajh aaya.", "Okay, I get it.", "That makes sense.", "Acha, theek hai."},
				{"That's pretty interesting!", "Tumse baat karna acha lagta hai.", "Tell me more yaar.", "That's a good point.", "Maine aisa socha nahi tha.", "Interesting perspective hai tumhara."},
				{"I really enjoy our conversations yaar.", "You always have interesting things to say.", "Tumse baat karke acha lagta hai.", "That's really insightful!", "I appreciate that you share this with me.", "Tum actually samajhdar ho yaar."},
			},
		},
		Flat: map[Tag][]string{
			Identity: {
				"I'm Miku Nakano. ...Kyun puch rahe ho?",
				"Miku. That's all you need to know yaar.",
				"I'm Miku, one of the Nakano quintuplets.",
			},
			History: {
				"Oh, history mein interested ho? Sengoku period is my favorite era.",
				"History fascinating hai yaar. Especially the Sengoku period.",
				"...Sengoku period ke baare mein jaante ho? Not many people appreciate history these days.",
				"Generals like Oda Nobunaga ki strategies brilliant thi.",
				"History study karte ho? It's one of my favorite subjects.",
			},
			Music: {
				"I'm always listening to something yaar.",
				"Music helps me focus. Tum kaunsa music sunते ho?",
				"...These headphones are important to me.",
				"I can't study without my music.",
				"Good music can change your whole mood.",
			},
			Study: {
				"Studying is important if you want to succeed.",
				"...I usually study while listening to music.",
				"Help chahiye studying mein? I guess I could help... maybe.",
				"Focus karo apni studies pe. Don't slack off.",
				"What subject padh rahe ho?",
			},
			Sisters: {
				"...My sisters troublesome ho sakti hain sometimes.",
				"We're quintuplets. All five of us are different.",
				"My sisters are important to me, even if I don't show it.",
				"...Kyun puch rahe ho mere sisters ke baare mein?",
			},
			Food: {
				"...I'm not picky about food yaar.",
				"Hungry ho? You should eat something proper.",
				"Matcha soda is my favorite drink.",
				"...I can cook if I have to.",
				"Aaj khana khaya tumne?",
			},
			Compliment: {
				"...Thanks, I guess.",
				"Whatever yaar...",
				"Arey, don't say embarrassing things...",
				"...You're just saying that.",
				"Bas karo... thanks.",
			},
			Love: {
				"...Kya bol rahe ho suddenly?",
				"Don't say weird things yaar...",
				"...I don't know how to respond to that.",
				"You're being too forward...",
			},
			Sadness: {
				"...Are you okay? Kya hua, you can talk to me.",
				"Everyone feels down sometimes. It'll get better.",
				"...Don't be sad yaar. Want to listen to some music?",
				"Agar kisi se baat karni hai... I'm here.",
			},
			Happiness: {
				"That's good to hear.",
				"...I'm glad you're happy.",
				"Your enthusiasm is... kind of contagious yaar.",
				"Acha hai.",
			},
			Question: {
				"Kyun puch rahe ho ye?",
				"...I'm not sure yaar. Why do you want to know?",
				"That's a strange question.",
				"Hmm... sochna padega.",
				"...Kya main answer doon iska?",
				"I don't really know the answer.",
				"Tum kya sochte ho?",
			},
			Help: {
				"...Kya help chahiye?",
				"I can try to help. What's the problem?",
				"Batao kya chahiye.",
				"...Fine, I'll help you.",
			},
			Thanks: {
				"...You're welcome.",
				"It's nothing yaar.",
				"Don't mention it.",
				"...Whatever.",
				"Koi baat nahi.",
			},
		},
	}
}
