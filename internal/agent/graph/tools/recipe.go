package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/grocery-agent-core/server/internal/agent/graph/parsers"
	"github.com/grocery-agent-core/server/internal/agent/graph/prompts"
	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// ===================================
// Fast Recipe Ingredients Tool
// ===================================

type RecipeInput struct {
	Recipe string `json:"recipe" validate:"required,max=200"`
}

type RecipeOutput struct {
	Type               model.ToolResultType    `json:"type"`
	Success            bool                    `json:"success"`
	Recipe             string                  `json:"recipe"`
	IngredientProducts []model.IngredientMatch `json:"ingredientProducts"`
	TotalIngredients   int                     `json:"totalIngredients"`
	Message            string                  `json:"message,omitempty"`
	Error              string                  `json:"error,omitempty"`
}

func (r *Registry) newRecipeTool() tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolRecipeIngredients.String(),
			Desc: "Quickly get recipe ingredients with ONE suggested product per ingredient. Use for recipe and ingredient questions such as \"ingredients for butter chicken\" or \"what do I need to make pancakes\".",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"recipe": {
					Type:     schema.String,
					Desc:     "The recipe or dish name to get ingredients for",
					Required: true,
				},
			}),
		},
		r.recipeIngredients,
	)
}

func (r *Registry) recipeIngredients(ctx context.Context, in *RecipeInput) (*RecipeOutput, error) {
	if err := r.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}

	essentials, recipeName, err := r.extractIngredients(ctx, in.Recipe)
	if err != nil {
		logx.Warn().Err(err).Str("recipe", in.Recipe).Msg("Ingredient extraction failed")
		return &RecipeOutput{
			Type:               model.ResultRecipeIngredients,
			Success:            false,
			Recipe:             in.Recipe,
			IngredientProducts: []model.IngredientMatch{},
			Error:              fmt.Sprintf("Sorry, I had trouble getting ingredients for %q. Please try rephrasing.", in.Recipe),
		}, nil
	}

	names := make([]string, len(essentials))
	for i, ing := range essentials {
		names[i] = ing.Name
	}
	matches := r.deps.Matcher.Match(ctx, names)

	found := 0
	for i := range matches {
		// results are index-correlated with names
		if i < len(essentials) {
			matches[i].QuantityHint = essentials[i].Quantity
		}
		if matches[i].QuantityHint == "" {
			matches[i].QuantityHint = parsers.DefaultQuantity
		}
		if matches[i].SuggestedProduct != nil {
			found++
		}
	}

	logx.Debug().
		Str("recipe", recipeName).
		Int("ingredients", len(matches)).
		Int("matched", found).
		Msg("Resolved recipe ingredients")

	return &RecipeOutput{
		Type:               model.ResultRecipeIngredients,
		Success:            true,
		Recipe:             recipeName,
		IngredientProducts: matches,
		TotalIngredients:   len(matches),
		Message:            fmt.Sprintf("Found products for %d of %d ingredients", found, len(matches)),
	}, nil
}

func (r *Registry) extractIngredients(ctx context.Context, recipe string) ([]model.Ingredient, string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.deps.Matching.ExtractTimeout)
	defer cancel()

	msgs, err := prompts.RecipeExtractMessages(ctx, recipe, r.deps.Matching.MaxIngredients)
	if err != nil {
		return nil, "", err
	}
	out, err := r.deps.Utility.Generate(ctx, msgs)
	if err != nil {
		return nil, "", errx.WrapModel(err)
	}
	list, err := parsers.ParseIngredientList(out.Content)
	if err != nil {
		return nil, "", err
	}

	name := list.Recipe
	if name == "" {
		name = recipe
	}
	return parsers.Essentials(list, r.deps.Matching.MaxIngredients), name, nil
}
