package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	errx "github.com/grocery-agent-core/server/internal/core/error"
)

const (
	minSearchLimit = 1
	maxSearchLimit = 20
	maxCartItems   = 20
)

// prepareArgs normalizes model-produced arguments before decoding: strings are
// trimmed, numbers coerced, the search limit clamped and the caller's session
// injected for session-scoped tools. A session id sent by the model is
// always overwritten.
func prepareArgs(name ToolName, arguments, sessionID string) (string, error) {
	m := map[string]any{}
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &m); err != nil {
			return "", fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
		}
		if m == nil {
			m = map[string]any{}
		}
	}

	switch name {
	case ToolRecipeIngredients:
		trimString(m, "recipe")
	case ToolDirectAnswer:
		trimString(m, "question")
	case ToolSearchProducts:
		trimString(m, "query")
		if v, ok := m["category"].(string); ok && strings.TrimSpace(v) != "" {
			m["category"] = strings.TrimSpace(v)
		} else {
			delete(m, "category")
		}
		coerceFloat(m, "maxPrice")
		coerceFloat(m, "minRating")
		if v, ok := m["limit"]; ok {
			if n, ok := toInt(v); ok {
				m["limit"] = clampInt(n, minSearchLimit, maxSearchLimit)
			} else {
				delete(m, "limit")
			}
		}
		if v, ok := m["useSemanticSearch"]; ok {
			switch vv := v.(type) {
			case bool:
			case string:
				if b, err := strconv.ParseBool(strings.TrimSpace(vv)); err == nil {
					m["useSemanticSearch"] = b
				} else {
					delete(m, "useSemanticSearch")
				}
			default:
				delete(m, "useSemanticSearch")
			}
		}
	case ToolAddToCart:
		m["productIds"] = toStringList(m["productIds"])
		if v, ok := m["quantities"]; ok {
			m["quantities"] = toQuantities(v)
		}
	}

	if name.SessionScoped() {
		m["sessionId"] = sessionID
	}

	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errx.ErrInvalidArguments, err)
	}
	return string(b), nil
}

func trimString(m map[string]any, key string) {
	v, ok := m[key]
	if !ok || v == nil {
		return
	}
	switch vv := v.(type) {
	case string:
		m[key] = strings.TrimSpace(vv)
	default:
		// coerce non-string to string
		m[key] = strings.TrimSpace(fmt.Sprint(v))
	}
}

func coerceFloat(m map[string]any, key string) {
	v, ok := m[key]
	if !ok {
		return
	}
	switch vv := v.(type) {
	case float64:
		if math.IsNaN(vv) || vv < 0 {
			delete(m, key)
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(vv), "$"), 64)
		if err != nil || f < 0 {
			delete(m, key)
			return
		}
		m[key] = f
	default:
		delete(m, key)
	}
}

func toInt(v any) (int, bool) {
	switch vv := v.(type) {
	case float64:
		// JSON numbers decode as float64
		return int(vv), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(vv))
		return n, err == nil
	default:
		return 0, false
	}
}

func toStringList(v any) []string {
	var raw []any
	switch vv := v.(type) {
	case []any:
		raw = vv
	case nil:
		return []string{}
	default:
		raw = []any{vv}
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		switch iv := item.(type) {
		case string:
			s = strings.TrimSpace(iv)
		case float64:
			s = strconv.FormatFloat(iv, 'f', -1, 64)
		}
		if s != "" && len(out) < maxCartItems {
			out = append(out, s)
		}
	}
	return out
}

// toQuantities coerces every entry to an integer of at least 1.
func toQuantities(v any) []int {
	var raw []any
	switch vv := v.(type) {
	case []any:
		raw = vv
	case nil:
		return []int{}
	default:
		raw = []any{vv}
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		n, ok := toInt(item)
		if !ok || n < 1 {
			n = 1
		}
		out = append(out, n)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
