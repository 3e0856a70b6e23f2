package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/grocery-agent-core/server/internal/agent/graph/prompts"
	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// ===================================
// Direct Answer Tool
// ===================================

type AnswerInput struct {
	Question string `json:"question" validate:"required,max=1000"`
}

type AnswerOutput struct {
	Type     model.ToolResultType `json:"type"`
	Success  bool                 `json:"success"`
	Question string               `json:"question"`
	Content  string               `json:"content,omitempty"`
	Error    string               `json:"error,omitempty"`
}

func (r *Registry) newAnswerTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolDirectAnswer.String(),
			Desc: "Answer general cooking and food questions from knowledge: techniques, storage, nutrition, substitutions. Not for recipe ingredient lists or product lookups.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"question": {
					Type:     schema.String,
					Desc:     "The cooking or grocery question to answer",
					Required: true,
				},
			}),
		},
		r.directAnswer,
	)
}

func (r *Registry) directAnswer(ctx context.Context, in *AnswerInput) (*AnswerOutput, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}

	content, err := r.answer(ctx, in.Question)
	if err != nil {
		logx.Warn().Err(err).Str("question", in.Question).Msg("Direct answer failed")
		return &AnswerOutput{
			Type:     model.ResultDirectAnswer,
			Success:  false,
			Question: in.Question,
			Error:    fmt.Sprintf("Sorry, I had trouble answering your question about %q. Please try rephrasing.", in.Question),
		}, nil
	}
	return &AnswerOutput{
		Type:     model.ResultDirectAnswer,
		Success:  true,
		Question: in.Question,
		Content:  content,
	}, nil
}

func (r *Registry) answer(ctx context.Context, question string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.deps.AnswerTimeout)
	defer cancel()

	msgs, err := prompts.DirectAnswerMessages(ctx, question)
	if err != nil {
		return "", err
	}
	out, err := r.deps.Utility.Generate(ctx, msgs)
	if err != nil {
		return "", errx.WrapModel(err)
	}
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return "", errx.ErrEmptyModelOutput
	}
	return content, nil
}
