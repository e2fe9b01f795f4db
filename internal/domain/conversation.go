package domain

import (
	"strings"
	"time"
)

// ConversationStatus represents the lifecycle state of a conversation
type ConversationStatus string

const (
	ConversationStatusActive          ConversationStatus = "ACTIVE"
	ConversationStatusWaitingForAgent ConversationStatus = "WAITING_FOR_AGENT"
	ConversationStatusAgentActive     ConversationStatus = "AGENT_ACTIVE"
	ConversationStatusResolved        ConversationStatus = "RESOLVED"
	ConversationStatusClosed          ConversationStatus = "CLOSED"
)

// SenderClass identifies who authored a message
type SenderClass string

const (
	SenderUser  SenderClass = "user"
	SenderBot   SenderClass = "bot"
	SenderAgent SenderClass = "agent"
)

// ValidSenderClass reports whether s is a recognized sender class.
func ValidSenderClass(s SenderClass) bool {
	switch s {
	case SenderUser, SenderBot, SenderAgent:
		return true
	}
	return false
}

// Conversation is a business-scoped thread of messages. Entities reference
// each other by id only; lookups go through repositories.
type Conversation struct {
	ID         string
	BusinessID string
	VisitorID  string
	Status     ConversationStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewConversation creates a new active Conversation instance
func NewConversation(id, businessID, visitorID string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:         id,
		BusinessID: businessID,
		VisitorID:  visitorID,
		Status:     ConversationStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Open reports whether the conversation still accepts messages. Only
// CLOSED is terminal: a RESOLVED conversation reopens when the visitor
// writes again, so a returning visitor keeps their thread.
func (c *Conversation) Open() bool {
	return c.Status != ConversationStatusClosed
}

// Message belongs to exactly one Conversation. Content is immutable after
// creation; Sentiment and Language are filled asynchronously by workers.
type Message struct {
	ID             string
	ConversationID string
	Sender         SenderClass
	Content        string
	Sentiment      string
	Language       string
	CreatedAt      time.Time
}

// NewMessage creates a new Message instance
func NewMessage(id, conversationID string, sender SenderClass, content string) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// Validate checks required fields before persistence.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyMessageContent
	}
	if !ValidSenderClass(m.Sender) {
		return ErrInvalidSenderClass
	}
	return nil
}
