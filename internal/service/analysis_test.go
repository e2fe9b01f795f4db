package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoflow/convoflow/internal/domain"
)

type fakeAnalyzer struct {
	sentiment    string
	language     string
	sentimentErr error
	languageErr  error
	calls        int
}

func (f *fakeAnalyzer) AnalyzeSentiment(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.sentiment, f.sentimentErr
}

func (f *fakeAnalyzer) DetectLanguage(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.language, f.languageErr
}

func TestAnnotateSentiment(t *testing.T) {
	msgs := &fakeMessageStore{messages: []*domain.Message{
		{ID: "msg-1", ConversationID: "conv-1", Content: "this is great, thank you!"},
	}}
	analyzer := &fakeAnalyzer{sentiment: "positive"}
	svc := NewAnalysisService(msgs, analyzer, nil)

	require.NoError(t, svc.AnnotateSentiment(context.Background(), "msg-1"))
	assert.Equal(t, "positive", msgs.messages[0].Sentiment)
	assert.Empty(t, msgs.messages[0].Language)
}

func TestAnnotateSentiment_Idempotent(t *testing.T) {
	msgs := &fakeMessageStore{messages: []*domain.Message{
		{ID: "msg-1", Content: "hello"},
	}}
	analyzer := &fakeAnalyzer{sentiment: "neutral"}
	svc := NewAnalysisService(msgs, analyzer, nil)

	require.NoError(t, svc.AnnotateSentiment(context.Background(), "msg-1"))
	require.NoError(t, svc.AnnotateSentiment(context.Background(), "msg-1"))
	assert.Equal(t, "neutral", msgs.messages[0].Sentiment)
}

func TestAnnotateSentiment_EmptyResultIsNoop(t *testing.T) {
	msgs := &fakeMessageStore{messages: []*domain.Message{
		{ID: "msg-1", Content: "hello", Sentiment: "positive"},
	}}
	analyzer := &fakeAnalyzer{sentiment: ""}
	svc := NewAnalysisService(msgs, analyzer, nil)

	require.NoError(t, svc.AnnotateSentiment(context.Background(), "msg-1"))
	assert.Equal(t, "positive", msgs.messages[0].Sentiment)
}

func TestAnnotateSentiment_Errors(t *testing.T) {
	analyzer := &fakeAnalyzer{sentimentErr: errors.New("model unavailable")}
	svc := NewAnalysisService(&fakeMessageStore{}, analyzer, nil)

	err := svc.AnnotateSentiment(context.Background(), "msg-missing")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	assert.Zero(t, analyzer.calls)

	msgs := &fakeMessageStore{messages: []*domain.Message{{ID: "msg-1", Content: "hi"}}}
	svc = NewAnalysisService(msgs, analyzer, nil)
	err = svc.AnnotateSentiment(context.Background(), "msg-1")
	assert.EqualError(t, err, "model unavailable")
	assert.Empty(t, msgs.messages[0].Sentiment)
}

func TestAnnotateLanguage(t *testing.T) {
	msgs := &fakeMessageStore{messages: []*domain.Message{
		{ID: "msg-1", Content: "مرحبا، كيف حالك؟", Sentiment: "neutral"},
	}}
	analyzer := &fakeAnalyzer{language: "ar"}
	svc := NewAnalysisService(msgs, analyzer, nil)

	require.NoError(t, svc.AnnotateLanguage(context.Background(), "msg-1"))
	assert.Equal(t, "ar", msgs.messages[0].Language)
	// Sentiment untouched by language annotation.
	assert.Equal(t, "neutral", msgs.messages[0].Sentiment)
}

func TestNormalizeSentiment(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"positive", "positive"},
		{"neutral", "neutral"},
		{"negative", "negative"},
		{"POSITIVE", "neutral"},
		{"somewhat happy", "neutral"},
		{"", "neutral"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSentiment(tt.raw), "raw %q", tt.raw)
	}
}
