package domain

import "time"

// HandoffStatus represents the state of an agent handoff request
type HandoffStatus string

const (
	HandoffStatusPending   HandoffStatus = "PENDING"
	HandoffStatusAccepted  HandoffStatus = "ACCEPTED"
	HandoffStatusCompleted HandoffStatus = "COMPLETED"
)

const (
	// MinQualityScore and MaxQualityScore bound the resolution quality rating.
	MinQualityScore = 1
	MaxQualityScore = 5
)

// HandoffRequest links a conversation to a human-agent escalation. At most
// one non-completed request exists per conversation.
type HandoffRequest struct {
	ID             string
	BusinessID     string
	ConversationID string
	AgentID        string
	Status         HandoffStatus
	Priority       int
	Reason         string
	QualityScore   *int
	Feedback       string
	RequestedAt    time.Time
	AcceptedAt     *time.Time
	CompletedAt    *time.Time
}

// NewHandoffRequest creates a new pending HandoffRequest instance
func NewHandoffRequest(id, businessID, conversationID, reason string, priority int) *HandoffRequest {
	return &HandoffRequest{
		ID:             id,
		BusinessID:     businessID,
		ConversationID: conversationID,
		Status:         HandoffStatusPending,
		Priority:       priority,
		Reason:         reason,
		RequestedAt:    time.Now().UTC(),
	}
}

// Accept transitions PENDING -> ACCEPTED.
func (h *HandoffRequest) Accept(agentID string, at time.Time) error {
	if h.Status != HandoffStatusPending {
		return ErrHandoffNotPending
	}
	h.Status = HandoffStatusAccepted
	h.AgentID = agentID
	h.AcceptedAt = &at
	return nil
}

// Complete transitions ACCEPTED -> COMPLETED. A nil score means the agent
// skipped rating; it is excluded from quality averages, never treated as zero.
func (h *HandoffRequest) Complete(score *int, feedback string, at time.Time) error {
	if h.Status != HandoffStatusAccepted {
		return ErrHandoffNotAccepted
	}
	if score != nil && (*score < MinQualityScore || *score > MaxQualityScore) {
		return ErrInvalidQualityScore
	}
	h.Status = HandoffStatusCompleted
	h.QualityScore = score
	h.Feedback = feedback
	h.CompletedAt = &at
	return nil
}

// ResolutionTime returns the duration between acceptance and completion.
func (h *HandoffRequest) ResolutionTime() (time.Duration, bool) {
	if h.AcceptedAt == nil || h.CompletedAt == nil {
		return 0, false
	}
	return h.CompletedAt.Sub(*h.AcceptedAt), true
}
