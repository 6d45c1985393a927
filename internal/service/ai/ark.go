package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/petpal/health-backend/internal/config"
)

// ArkBackend runs prompts through an eino chain ending in a chat model.
type ArkBackend struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewArkBackend creates the Ark chat model from config and compiles the chain.
func NewArkBackend(ctx context.Context, cfg config.AIConfig) (*ArkBackend, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewChainBackend(ctx, chatModel)
}

// NewChainBackend compiles the system + user template in front of any chat model.
func NewChainBackend(ctx context.Context, chatModel model.BaseChatModel) (*ArkBackend, error) {
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ArkBackend{chain: runnable}, nil
}

func chainInput(system, query string) map[string]any {
	return map[string]any{
		"system": system,
		"query":  query,
	}
}

// Generate implements Generator.
func (b *ArkBackend) Generate(ctx context.Context, system, query string) (string, error) {
	msg, err := b.chain.Invoke(ctx, chainInput(system, query))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	return msg.Content, nil
}

// Stream implements Generator.
func (b *ArkBackend) Stream(ctx context.Context, system, query string, onDelta func(string) error) (string, error) {
	stream, err := b.chain.Stream(ctx, chainInput(system, query))
	if err != nil {
		return "", fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return builder.String(), nil
		}
		if err != nil {
			return builder.String(), fmt.Errorf("failed to receive stream chunk: %w", err)
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		builder.WriteString(chunk.Content)
		if onDelta != nil {
			if err := onDelta(chunk.Content); err != nil {
				return builder.String(), err
			}
		}
	}
}
