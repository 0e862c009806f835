package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/iris-chat/internal/config"
	"github.com/zhouzirui/iris-chat/internal/service/transcript"
)

// Responder produces the assistant's reply to one user message.
type Responder interface {
	Reply(ctx context.Context, clientID string, history []transcript.Entry, userMessage string) (string, error)
}

// Service answers through an Ark chat model wrapped in an eino chain.
type Service struct {
	chatModel    model.ChatModel
	cfg          config.AIConfig
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
	logger       *zap.Logger
}

var _ Responder = (*Service)(nil)

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return newServiceWithModel(ctx, chatModel, cfg, logger)
}

func newServiceWithModel(ctx context.Context, chatModel model.ChatModel, cfg config.AIConfig, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 20
	}

	return &Service{
		chatModel:    chatModel,
		cfg:          cfg,
		chain:        runnable,
		historyLimit: limit,
		logger:       logger.Named("ai"),
	}, nil
}

// Reply runs the chain over the remembered history and the new message.
func (s *Service) Reply(ctx context.Context, clientID string, history []transcript.Entry, userMessage string) (string, error) {
	input := map[string]any{
		"system":  SystemPrompt(),
		"history": s.buildHistoryMessages(history),
		"query":   userMessage,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}

	s.logger.Info("generated response",
		zap.String("client", clientID),
		zap.Int("length", len(response.Content)))
	return strings.TrimSpace(response.Content), nil
}

func (s *Service) buildHistoryMessages(entries []transcript.Entry) []*schema.Message {
	if len(entries) == 0 {
		return nil
	}

	startIdx := 0
	if len(entries) > s.historyLimit {
		startIdx = len(entries) - s.historyLimit
	}

	history := make([]*schema.Message, 0, len(entries)-startIdx)
	for _, entry := range entries[startIdx:] {
		switch entry.Role {
		case transcript.RoleUser:
			history = append(history, schema.UserMessage(entry.Content))
		case transcript.RoleAssistant:
			history = append(history, schema.AssistantMessage(entry.Content, nil))
		}
	}
	return history
}
