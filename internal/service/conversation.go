package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/convoflow/convoflow/internal/cache"
	"github.com/convoflow/convoflow/internal/domain"
	"github.com/convoflow/convoflow/internal/queue"
	"github.com/convoflow/convoflow/internal/telemetry"
)

const (
	// historyWindow is how many trailing messages feed reply generation.
	historyWindow = 10

	historyCacheTTL = 10 * time.Minute

	contextSnippetLimit = 5

	// FallbackReply is sent when reply generation fails. The visitor gets
	// an apology, never an error.
	FallbackReply = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."
)

// ConversationStore is the persistence surface for conversations.
type ConversationStore interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, businessID, id string) (*domain.Conversation, error)
	GetOpenByVisitor(ctx context.Context, businessID, visitorID string) (*domain.Conversation, error)
	UpdateStatus(ctx context.Context, businessID, id string, status domain.ConversationStatus, at time.Time) error
	Touch(ctx context.Context, businessID, id string, at time.Time) error
}

// MessageStore is the persistence surface for messages.
type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id string) (*domain.Message, error)
	ListRecent(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error)
	SetAnalysis(ctx context.Context, id, sentiment, language string) error
}

// Retriever answers similarity searches over the tenant's knowledge.
type Retriever interface {
	Search(ctx context.Context, businessID, query string, limit int, minSimilarity float64) ([]*SearchResult, error)
}

// GenerationOptions toggle the per-message pipeline stages.
type GenerationOptions struct {
	UseVectorSearch  bool
	DetectIntent     bool
	AnalyzeSentiment bool
	DetectLanguage   bool
}

// DefaultGenerationOptions enables every stage.
func DefaultGenerationOptions() GenerationOptions {
	return GenerationOptions{
		UseVectorSearch:  true,
		DetectIntent:     true,
		AnalyzeSentiment: true,
		DetectLanguage:   true,
	}
}

// GenerationRequest carries everything the reply generator sees.
type GenerationRequest struct {
	BusinessID string
	History    []*domain.Message
	Snippets   []*SearchResult
	Options    GenerationOptions
}

// Generator produces the bot reply text. Implementations live in
// internal/llm; tests inject fakes.
type Generator interface {
	GenerateReply(ctx context.Context, req GenerationRequest) (string, error)
}

// IncomingMessage is one inbound message from the widget or an agent
// console.
type IncomingMessage struct {
	BusinessID     string
	ConversationID string
	VisitorID      string
	Sender         domain.SenderClass
	Content        string
	Options        GenerationOptions
}

// MessageOutcome reports what HandleIncomingMessage did.
type MessageOutcome struct {
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	Reply          *domain.Message `json:"reply,omitempty"`
}

// ConversationService orchestrates the message pipeline: persist, recall
// history, retrieve knowledge, generate, and schedule analysis.
type ConversationService struct {
	conversations ConversationStore
	messages      MessageStore
	retriever     Retriever
	generator     Generator
	cache         cache.Cache
	enqueuer      Enqueuer
	logger        *zap.Logger
	uuidGen       UUIDGenerator
}

func NewConversationService(
	conversations ConversationStore,
	messages MessageStore,
	retriever Retriever,
	generator Generator,
	c cache.Cache,
	enqueuer Enqueuer,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		retriever:     retriever,
		generator:     generator,
		cache:         c,
		enqueuer:      enqueuer,
		logger:        logger,
		uuidGen:       &DefaultUUIDGenerator{},
	}
}

// HandleIncomingMessage persists the inbound message and, for user
// messages, generates and persists a bot reply. Message persistence
// errors propagate; generation failure degrades to a fixed apology.
func (s *ConversationService) HandleIncomingMessage(ctx context.Context, input IncomingMessage) (*MessageOutcome, error) {
	if input.BusinessID == "" {
		return nil, domain.ErrMissingBusinessID
	}

	msg := domain.NewMessage(s.uuidGen.NewString(), "", input.Sender, input.Content)
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "conversation.handle_message", telemetry.SpanAttributes{
		BusinessID:     input.BusinessID,
		ConversationID: input.ConversationID,
		Operation:      "handle_incoming_message",
	})
	defer span.End()

	conv, err := s.resolveConversation(ctx, input)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if !conv.Open() {
		return nil, domain.ErrConversationClosed
	}

	msg.ConversationID = conv.ID
	if err := s.messages.Create(ctx, msg); err != nil {
		span.SetError(err)
		return nil, err
	}
	s.invalidateHistory(ctx, conv.ID)
	now := time.Now().UTC()
	if err := s.conversations.Touch(ctx, conv.BusinessID, conv.ID, now); err != nil {
		s.logger.Warn("failed to touch conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	outcome := &MessageOutcome{ConversationID: conv.ID, MessageID: msg.ID}

	// Bot and agent messages are recorded without triggering a reply.
	if input.Sender != domain.SenderUser {
		return outcome, nil
	}

	reply := s.generateReply(ctx, conv, msg, input.Options)
	outcome.Reply = reply

	s.scheduleAnalysis(ctx, conv, msg, input.Options)
	return outcome, nil
}

func (s *ConversationService) resolveConversation(ctx context.Context, input IncomingMessage) (*domain.Conversation, error) {
	if input.ConversationID != "" {
		return s.conversations.GetByID(ctx, input.BusinessID, input.ConversationID)
	}

	if input.VisitorID != "" {
		conv, err := s.conversations.GetOpenByVisitor(ctx, input.BusinessID, input.VisitorID)
		if err == nil {
			return conv, nil
		}
		if err != domain.ErrConversationNotFound {
			return nil, err
		}
	}

	conv := domain.NewConversation(s.uuidGen.NewString(), input.BusinessID, input.VisitorID)
	if err := s.conversations.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationService) generateReply(ctx context.Context, conv *domain.Conversation, inbound *domain.Message, opts GenerationOptions) *domain.Message {
	history := s.recentHistory(ctx, conv.ID)

	var snippets []*SearchResult
	if opts.UseVectorSearch {
		results, err := s.retriever.Search(ctx, conv.BusinessID, inbound.Content, contextSnippetLimit, 0)
		if err != nil {
			// Retrieval trouble degrades to an uninformed reply.
			s.logger.Warn("knowledge retrieval failed, replying without context",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		} else {
			snippets = results
		}
	}

	text, err := s.generator.GenerateReply(ctx, GenerationRequest{
		BusinessID: conv.BusinessID,
		History:    history,
		Snippets:   snippets,
		Options:    opts,
	})
	if err != nil {
		s.logger.Error("reply generation failed, sending fallback",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		telemetry.CaptureError(ctx, err)
		text = FallbackReply
	}

	reply := domain.NewMessage(s.uuidGen.NewString(), conv.ID, domain.SenderBot, text)
	if err := s.messages.Create(ctx, reply); err != nil {
		s.logger.Error("failed to persist bot reply",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		return nil
	}
	s.invalidateHistory(ctx, conv.ID)
	return reply
}

// recentHistory returns the conversation's trailing messages, cache-first.
func (s *ConversationService) recentHistory(ctx context.Context, conversationID string) []*domain.Message {
	key := historyKey(conversationID)

	var cached []*domain.Message
	if s.cache != nil && cache.GetJSON(ctx, s.cache, key, &cached) {
		return cached
	}

	history, err := s.messages.ListRecent(ctx, conversationID, historyWindow)
	if err != nil {
		s.logger.Warn("failed to load history", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	if s.cache != nil {
		cache.SetJSON(ctx, s.cache, key, history, historyCacheTTL)
	}
	return history
}

func (s *ConversationService) invalidateHistory(ctx context.Context, conversationID string) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, historyKey(conversationID)); err != nil {
			s.logger.Debug("history cache invalidation failed", zap.Error(err))
		}
	}
}

func historyKey(conversationID string) string {
	return cache.Key("history", conversationID)
}

func (s *ConversationService) scheduleAnalysis(ctx context.Context, conv *domain.Conversation, msg *domain.Message, opts GenerationOptions) {
	if opts.AnalyzeSentiment {
		outcome := s.enqueuer.Enqueue(ctx, "analyze-sentiment", queue.SentimentPayload{
			BusinessID:     conv.BusinessID,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
		}, queue.Options{})
		if !outcome.Enqueued {
			s.logger.Warn("sentiment job dropped",
				zap.String("message_id", msg.ID), zap.String("reason", outcome.DropReason))
		}
	}
	if opts.DetectLanguage {
		outcome := s.enqueuer.Enqueue(ctx, "detect-language", queue.LanguagePayload{
			BusinessID:     conv.BusinessID,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
		}, queue.Options{})
		if !outcome.Enqueued {
			s.logger.Warn("language job dropped",
				zap.String("message_id", msg.ID), zap.String("reason", outcome.DropReason))
		}
	}
}

// History returns the trailing window of a conversation for API callers,
// verifying tenant ownership first.
func (s *ConversationService) History(ctx context.Context, businessID, conversationID string, limit int) ([]*domain.Message, error) {
	if businessID == "" {
		return nil, domain.ErrMissingBusinessID
	}
	if _, err := s.conversations.GetByID(ctx, businessID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = historyWindow
	}
	return s.messages.ListRecent(ctx, conversationID, limit)
}
