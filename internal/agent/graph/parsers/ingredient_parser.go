package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/grocery-agent-core/server/internal/agent/model"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen  = 64 * 1024
	maxIngredients = 100
	maxNameLen     = 120
	maxQuantityLen = 60
	maxErrSnippet  = 200

	DefaultQuantity = "as needed"
)

// ParseIngredientList decodes the extraction model's JSON reply. Code fences
// and text around the outermost object are ignored.
func ParseIngredientList(content string) (list *model.RecipeIngredients, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "ingredient_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("ingredient parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			list = nil
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "ingredient_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		return nil, fmt.Errorf("ingredient list: invalid utf8")
	}

	body := extractObject(stripFences(content))
	if body == "" {
		return nil, fmt.Errorf("ingredient list: no json object in %q", safeSnippet(content))
	}

	var raw model.RecipeIngredients
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("ingredient list: %w", err)
	}

	out := &model.RecipeIngredients{Recipe: strings.TrimSpace(raw.Recipe)}
	for _, ing := range raw.Ingredients {
		if len(out.Ingredients) >= maxIngredients {
			break
		}
		name := strings.TrimSpace(ing.Name)
		if name == "" || len(name) > maxNameLen {
			continue
		}
		qty := strings.TrimSpace(ing.Quantity)
		if qty == "" || len(qty) > maxQuantityLen {
			qty = DefaultQuantity
		}
		out.Ingredients = append(out.Ingredients, model.Ingredient{Name: name, Quantity: qty, Essential: ing.Essential})
	}
	if len(out.Ingredients) == 0 {
		return nil, fmt.Errorf("ingredient list: no ingredients")
	}
	return out, nil
}

// Essentials returns up to limit essential ingredients, or the first limit
// ingredients when none are flagged.
func Essentials(list *model.RecipeIngredients, limit int) []model.Ingredient {
	if list == nil || limit <= 0 {
		return nil
	}
	var picked []model.Ingredient
	for _, ing := range list.Ingredients {
		if ing.Essential {
			picked = append(picked, ing)
		}
	}
	if len(picked) == 0 {
		picked = list.Ingredients
	}
	if len(picked) > limit {
		picked = picked[:limit]
	}
	return picked
}

// --- helpers ---

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop the language tag line
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
