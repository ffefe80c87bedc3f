package domain

import "time"

type ConversationID string
type UserID string

// Sender distinguishes the two parties of a conversation.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

type Timestamp = time.Time

// User is the authenticated account as reported by the identity collaborator.
type User struct {
	UID   UserID
	Email string
}
