// Package service contains the business logic of the subsystem: knowledge
// ingestion, retrieval, conversation orchestration, handoffs and message
// analysis. Services depend on narrow interfaces and are wired at startup.
package service

import "github.com/google/uuid"

// UUIDGenerator abstracts id generation so tests can use fixed ids.
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator generates random v4 UUIDs.
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
