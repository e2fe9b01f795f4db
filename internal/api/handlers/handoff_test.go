package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/service"
)

type MockHandoffService struct {
	mock.Mock
}

func (m *MockHandoffService) RequestHandoff(ctx context.Context, businessID, conversationID, reason string, priority int) (*domain.HandoffRequest, error) {
	args := m.Called(ctx, businessID, conversationID, reason, priority)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HandoffRequest), args.Error(1)
}

func (m *MockHandoffService) AcceptHandoff(ctx context.Context, businessID, handoffID, agentID string) (*domain.HandoffRequest, error) {
	args := m.Called(ctx, businessID, handoffID, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HandoffRequest), args.Error(1)
}

func (m *MockHandoffService) CompleteHandoff(ctx context.Context, businessID, handoffID string, score *int, feedback string) (*domain.HandoffRequest, error) {
	args := m.Called(ctx, businessID, handoffID, score, feedback)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.HandoffRequest), args.Error(1)
}

func (m *MockHandoffService) PendingHandoffs(ctx context.Context, businessID string, limit int) ([]*domain.HandoffRequest, error) {
	args := m.Called(ctx, businessID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.HandoffRequest), args.Error(1)
}

func (m *MockHandoffService) Stats(ctx context.Context, businessID string, window time.Duration) (*service.HandoffStats, error) {
	args := m.Called(ctx, businessID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.HandoffStats), args.Error(1)
}

func newTestHandoff() *domain.HandoffRequest {
	return &domain.HandoffRequest{
		ID:             "h-123",
		BusinessID:     "biz-456",
		ConversationID: "conv-1",
		Status:         domain.HandoffStatusPending,
		Priority:       2,
		Reason:         "customer asked for a human",
		RequestedAt:    time.Now().UTC(),
	}
}

func TestHandoffHandler_Request_Success(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	mockSvc.On("RequestHandoff", mock.Anything, "biz-456", "conv-1", "customer asked for a human", 2).
		Return(newTestHandoff(), nil)

	body := `{"conversation_id":"conv-1","reason":"customer asked for a human","priority":2}`
	req := requestWithBusinessID(http.MethodPost, "/handoffs", []byte(body))
	w := httptest.NewRecorder()

	handler.Request(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "PENDING", data["status"])
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Request_MissingConversation(t *testing.T) {
	handler := NewHandoffHandler(new(MockHandoffService))

	req := requestWithBusinessID(http.MethodPost, "/handoffs", []byte(`{"reason":"help"}`))
	w := httptest.NewRecorder()

	handler.Request(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "conversation_id is required")
}

func TestHandoffHandler_Request_AlreadyPending(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	mockSvc.On("RequestHandoff", mock.Anything, "biz-456", "conv-1", "", 0).
		Return(nil, domain.ErrHandoffAlreadyPending)

	req := requestWithBusinessID(http.MethodPost, "/handoffs", []byte(`{"conversation_id":"conv-1"}`))
	w := httptest.NewRecorder()

	handler.Request(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Accept_Success(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	accepted := newTestHandoff()
	accepted.Status = domain.HandoffStatusAccepted
	accepted.AgentID = "agent-7"
	now := time.Now().UTC()
	accepted.AcceptedAt = &now
	mockSvc.On("AcceptHandoff", mock.Anything, "biz-456", "h-123", "agent-7").
		Return(accepted, nil)

	req := withURLParam(requestWithBusinessID(http.MethodPost, "/handoffs/h-123/accept", []byte(`{"agent_id":"agent-7"}`)), "handoffID", "h-123")
	w := httptest.NewRecorder()

	handler.Accept(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ACCEPTED", data["status"])
	assert.Equal(t, "agent-7", data["agent_id"])
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Accept_MissingAgent(t *testing.T) {
	handler := NewHandoffHandler(new(MockHandoffService))

	req := withURLParam(requestWithBusinessID(http.MethodPost, "/handoffs/h-123/accept", []byte(`{}`)), "handoffID", "h-123")
	w := httptest.NewRecorder()

	handler.Accept(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "agent_id is required")
}

func TestHandoffHandler_Complete_WithScore(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	completed := newTestHandoff()
	completed.Status = domain.HandoffStatusCompleted
	score := 4
	completed.QualityScore = &score
	mockSvc.On("CompleteHandoff", mock.Anything, "biz-456", "h-123", mock.MatchedBy(func(s *int) bool {
		return s != nil && *s == 4
	}), "resolved quickly").Return(completed, nil)

	body := `{"quality_score":4,"feedback":"resolved quickly"}`
	req := withURLParam(requestWithBusinessID(http.MethodPost, "/handoffs/h-123/complete", []byte(body)), "handoffID", "h-123")
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(4), data["quality_score"])
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Complete_NotAccepted(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	mockSvc.On("CompleteHandoff", mock.Anything, "biz-456", "h-123", (*int)(nil), "").
		Return(nil, domain.ErrHandoffNotAccepted)

	req := withURLParam(requestWithBusinessID(http.MethodPost, "/handoffs/h-123/complete", []byte(`{}`)), "handoffID", "h-123")
	w := httptest.NewRecorder()

	handler.Complete(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Pending_Success(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	mockSvc.On("PendingHandoffs", mock.Anything, "biz-456", 50).
		Return([]*domain.HandoffRequest{newTestHandoff()}, nil)

	req := requestWithBusinessID(http.MethodGet, "/handoffs", nil)
	w := httptest.NewRecorder()

	handler.Pending(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp["data"].([]interface{}), 1)
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Stats_WindowDays(t *testing.T) {
	mockSvc := new(MockHandoffService)
	handler := NewHandoffHandler(mockSvc)

	stats := &service.HandoffStats{Requested: 10, Completed: 8, AvgResolutionSeconds: 320, AvgQualityScore: 4.2, RatedCompletions: 6}
	mockSvc.On("Stats", mock.Anything, "biz-456", 30*24*time.Hour).Return(stats, nil)

	req := requestWithBusinessID(http.MethodGet, "/handoffs/stats?window_days=30", nil)
	w := httptest.NewRecorder()

	handler.Stats(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(10), data["requested"])
	mockSvc.AssertExpectations(t)
}

func TestHandoffHandler_Unauthorized(t *testing.T) {
	handler := NewHandoffHandler(new(MockHandoffService))

	req := httptest.NewRequest(http.MethodGet, "/handoffs", nil)
	w := httptest.NewRecorder()

	handler.Pending(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
