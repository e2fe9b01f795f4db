package service

import (
	"context"

	"go.uber.org/zap"
)

// Analyzer classifies message text. Implementations live in internal/llm.
type Analyzer interface {
	AnalyzeSentiment(ctx context.Context, text string) (string, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// AnalysisService fills message sentiment and language annotations. It is
// driven by queue workers, so every method is safe to re-run: annotating
// an already annotated message overwrites with the same value.
type AnalysisService struct {
	messages MessageStore
	analyzer Analyzer
	logger   *zap.Logger
}

func NewAnalysisService(messages MessageStore, analyzer Analyzer, logger *zap.Logger) *AnalysisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{messages: messages, analyzer: analyzer, logger: logger}
}

// AnnotateSentiment classifies one message's sentiment and stores it.
func (s *AnalysisService) AnnotateSentiment(ctx context.Context, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	sentiment, err := s.analyzer.AnalyzeSentiment(ctx, msg.Content)
	if err != nil {
		return err
	}
	if sentiment == "" {
		return nil
	}
	return s.messages.SetAnalysis(ctx, messageID, sentiment, "")
}

// AnnotateLanguage detects one message's language and stores it.
func (s *AnalysisService) AnnotateLanguage(ctx context.Context, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	language, err := s.analyzer.DetectLanguage(ctx, msg.Content)
	if err != nil {
		return err
	}
	if language == "" {
		return nil
	}
	return s.messages.SetAnalysis(ctx, messageID, "", language)
}

// ValidSentiments are the labels the analyzer is expected to emit.
var ValidSentiments = map[string]bool{
	"positive": true,
	"neutral":  true,
	"negative": true,
}

// NormalizeSentiment maps analyzer output onto the known label set;
// unknown labels collapse to neutral rather than polluting the column.
func NormalizeSentiment(raw string) string {
	if ValidSentiments[raw] {
		return raw
	}
	return "neutral"
}
