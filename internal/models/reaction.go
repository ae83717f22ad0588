package models

import "strings"

// Emoji is one of the fixed reactions supported by the API.
type Emoji string

const (
	EmojiThumbsUp   Emoji = "👍"
	EmojiThumbsDown Emoji = "👎"
	EmojiLaugh      Emoji = "😄"
	EmojiHooray     Emoji = "🎉"
	EmojiConfused   Emoji = "😕"
	EmojiHeart      Emoji = "❤️"
	EmojiRocket     Emoji = "🚀"
	EmojiEyes       Emoji = "👀"
)

// Emojis lists the supported reactions in display order.
var Emojis = []Emoji{
	EmojiThumbsUp,
	EmojiThumbsDown,
	EmojiLaugh,
	EmojiHooray,
	EmojiConfused,
	EmojiHeart,
	EmojiRocket,
	EmojiEyes,
}

var emojiAliases = map[string]Emoji{
	"+1":       EmojiThumbsUp,
	"thumbsup": EmojiThumbsUp,
	"-1":       EmojiThumbsDown,
	"laugh":    EmojiLaugh,
	"hooray":   EmojiHooray,
	"tada":     EmojiHooray,
	"confused": EmojiConfused,
	"heart":    EmojiHeart,
	"❤":        EmojiHeart,
	"rocket":   EmojiRocket,
	"eyes":     EmojiEyes,
}

// ParseEmoji resolves an emoji or its short alias. ok is false for anything
// outside the supported set.
func ParseEmoji(value string) (Emoji, bool) {
	value = strings.TrimSpace(value)
	for _, e := range Emojis {
		if string(e) == value {
			return e, true
		}
	}
	e, ok := emojiAliases[strings.ToLower(strings.Trim(value, ":"))]
	return e, ok
}

// Reaction is the aggregate state of one emoji on a target.
type Reaction struct {
	Count       int       `json:"count"`
	UserReacted bool      `json:"userReacted"`
	Users       []UserRef `json:"users"`
}

// ReactionSummary maps each emoji present on a target to its aggregate state.
type ReactionSummary map[Emoji]Reaction

// Clone returns a deep copy of the summary. A nil summary clones to an empty one.
func (s ReactionSummary) Clone() ReactionSummary {
	out := make(ReactionSummary, len(s))
	for e, r := range s {
		if r.Users != nil {
			users := make([]UserRef, len(r.Users))
			copy(users, r.Users)
			r.Users = users
		}
		out[e] = r
	}
	return out
}

// Total returns the sum of all counts.
func (s ReactionSummary) Total() int {
	n := 0
	for _, r := range s {
		n += r.Count
	}
	return n
}
