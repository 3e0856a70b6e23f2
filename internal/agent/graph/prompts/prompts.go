// Package prompts renders the system prompts used by the agent and its tools.
// Rendering goes through the eino prompt component so prompt callbacks fire.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

var (
	//go:embed template/agent_system.txt
	agentSystemPrompt string

	//go:embed template/recipe_extract.txt
	recipeExtractPrompt string

	//go:embed template/direct_answer.txt
	directAnswerPrompt string

	//go:embed template/sanitizer.txt
	sanitizerPrompt string
)

// AgentVars fills the reasoning loop's system prompt.
type AgentVars struct {
	StoreName  string
	RecipeTool string
	SearchTool string
	AddTool    string
	ViewTool   string
	ClearTool  string
	AnswerTool string
}

func RenderAgentSystem(ctx context.Context, v AgentVars) (string, error) {
	return renderSystem(ctx, "agent", agentSystemPrompt, map[string]any{
		"StoreName":  v.StoreName,
		"RecipeTool": v.RecipeTool,
		"SearchTool": v.SearchTool,
		"AddTool":    v.AddTool,
		"ViewTool":   v.ViewTool,
		"ClearTool":  v.ClearTool,
		"AnswerTool": v.AnswerTool,
	})
}

// RecipeExtractMessages builds the ingredient extraction request for recipe.
func RecipeExtractMessages(ctx context.Context, recipe string, maxIngredients int) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(recipeExtractPrompt),
		schema.UserMessage("Ingredients for {{.Recipe}}"),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"MaxIngredients": maxIngredients,
		"Recipe":         recipe,
	})
	if err != nil {
		return nil, fmt.Errorf("recipe prompt render: %w", err)
	}
	return msgs, nil
}

// DirectAnswerMessages builds a tool-less knowledge question.
func DirectAnswerMessages(ctx context.Context, question string) ([]*schema.Message, error) {
	return withUserText(ctx, "direct answer", directAnswerPrompt, question)
}

// SanitizerMessages builds the PII rewrite request for text.
func SanitizerMessages(ctx context.Context, text string) ([]*schema.Message, error) {
	return withUserText(ctx, "sanitizer", sanitizerPrompt, text)
}

// withUserText passes user text through a placeholder so template syntax in
// it is never interpreted.
func withUserText(ctx context.Context, name, system, text string) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.MessagesPlaceholder("user_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"user_messages": []*schema.Message{schema.UserMessage(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	return msgs, nil
}

func renderSystem(ctx context.Context, name, text string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(text))
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs[0].Content, nil
}
