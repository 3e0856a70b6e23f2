package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/grocery-agent-core/server/internal/agent/model"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Client        *genai.Client
	AgentConfig   *model.AgentModelConfig
	UtilityConfig *model.UtilityModelConfig
}

// ChatModels holds the agent model driving the reasoning loop and the
// tool-less utility model used for extraction, direct answers and sanitizing.
type ChatModels struct {
	Agent            *gemini.ChatModel
	Utility          *gemini.ChatModel
	AgentModelName   string
	UtilityModelName string
}

// NewGeminiClient creates the genai client shared by the chat models and the
// embedder.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// NewChatModels creates the agent and utility chat models
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil || config.AgentConfig == nil || config.UtilityConfig == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	agent, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.AgentConfig.Model,
		Temperature: &config.AgentConfig.Temperature,
		MaxTokens:   &config.AgentConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating agent model")
		return nil, fmt.Errorf("error creating agent model: %w", err)
	}

	// Create Utility Chat Model
	utility, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.UtilityConfig.Model,
		Temperature: &config.UtilityConfig.Temperature,
		MaxTokens:   &config.UtilityConfig.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating utility model")
		return nil, fmt.Errorf("error creating utility model: %w", err)
	}

	return &ChatModels{
		Agent:            agent,
		Utility:          utility,
		AgentModelName:   config.AgentConfig.Model,
		UtilityModelName: config.UtilityConfig.Model,
	}, nil
}

// BindAgentTools returns the agent model with the tool set bound. The
// original model is left untouched.
func (cm *ChatModels) BindAgentTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := cm.Agent.WithTools(tools)
	if err != nil {
		logx.Error().Err(err).Msg("Failed to bind tools")
		return nil, fmt.Errorf("failed to bind tools: %w", err)
	}

	logx.Debug().Int("tool_count", len(tools)).Msg("Successfully bound tools to agent model")
	return bound, nil
}
