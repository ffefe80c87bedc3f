package domain

import "strings"

// Message is one utterance in a conversation timeline. Immutable once
// created. Ordering within a conversation is by slice position; CreatedAt is
// informative only.
type Message struct {
	Text      string
	Sender    Sender
	CreatedAt Timestamp
}

// Conversation is one persisted chat session, owned by a single user.
// Messages are append-only; the record is destroyed only by explicit delete.
type Conversation struct {
	ID        ConversationID
	OwnerID   UserID
	Title     string
	CreatedAt Timestamp
	Messages  []Message
}

const (
	// WelcomeText opens every fresh session. Synthesized locally; it reaches
	// the store only as part of the initial sequence written on first send.
	WelcomeText = "Welcome. Let's reframe a thought. What's on your mind today?"

	// ApologyText stands in for the agent reply when an exchange fails. It is
	// local-only and never persisted.
	ApologyText = "Sorry, something went wrong. Please try again."

	titlePreviewRunes = 30
)

// WelcomeMessage returns the synthetic agent greeting shown before any
// conversation exists.
func WelcomeMessage(now Timestamp) Message {
	return Message{Text: WelcomeText, Sender: SenderAgent, CreatedAt: now}
}

// ApologyMessage returns the local-only agent reply used when an exchange
// fails.
func ApologyMessage(now Timestamp) Message {
	return Message{Text: ApologyText, Sender: SenderAgent, CreatedAt: now}
}

// DeriveTitle builds a conversation title from the first user message: the
// first 30 runes followed by an ellipsis. The title is fixed at creation time
// and never recomputed.
func DeriveTitle(firstUserText string) string {
	runes := []rune(strings.TrimSpace(firstUserText))
	if len(runes) > titlePreviewRunes {
		runes = runes[:titlePreviewRunes]
	}
	return string(runes) + "..."
}
