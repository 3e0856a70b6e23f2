package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grocery-agent-core/server/internal/agent/model"
)

func TestParseIngredientList(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		recipe   string
		expected []model.Ingredient
		wantErr  bool
	}{
		{
			name:    "plain json",
			content: `{"recipe":"Butter Chicken","ingredients":[{"name":"chicken","quantity":"500g","essential":true},{"name":" tomatoes ","quantity":"","essential":true}]}`,
			recipe:  "Butter Chicken",
			expected: []model.Ingredient{
				{Name: "chicken", Quantity: "500g", Essential: true},
				{Name: "tomatoes", Quantity: DefaultQuantity, Essential: true},
			},
		},
		{
			name:     "fenced with chatter",
			content:  "```json\nHere you go: {\"recipe\":\"Pancakes\",\"ingredients\":[{\"name\":\"flour\",\"quantity\":\"2 cups\",\"essential\":true}]}\n```",
			recipe:   "Pancakes",
			expected: []model.Ingredient{{Name: "flour", Quantity: "2 cups", Essential: true}},
		},
		{
			name:     "blank names skipped",
			content:  `{"ingredients":[{"name":""},{"name":"eggs","quantity":"3"}]}`,
			expected: []model.Ingredient{{Name: "eggs", Quantity: "3"}},
		},
		{name: "no object", content: "I cannot help with that", wantErr: true},
		{name: "malformed", content: `{"ingredients": [}`, wantErr: true},
		{name: "empty list", content: `{"recipe":"x","ingredients":[]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIngredientList(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.recipe, got.Recipe)
			assert.Equal(t, tt.expected, got.Ingredients)
		})
	}
}

func TestParseIngredientListTruncatesHugeInput(t *testing.T) {
	_, err := ParseIngredientList(strings.Repeat("x", maxContentLen+10))
	assert.Error(t, err)
}

func TestEssentials(t *testing.T) {
	mk := func(n int, essential func(int) bool) *model.RecipeIngredients {
		l := &model.RecipeIngredients{}
		for i := 0; i < n; i++ {
			l.Ingredients = append(l.Ingredients, model.Ingredient{Name: string(rune('a' + i)), Essential: essential(i)})
		}
		return l
	}

	got := Essentials(mk(9, func(i int) bool { return i%2 == 0 }), 6)
	require.Len(t, got, 5)
	assert.Equal(t, "a", got[0].Name)
	assert.Equal(t, "c", got[1].Name)

	got = Essentials(mk(9, func(int) bool { return true }), 6)
	assert.Len(t, got, 6)

	got = Essentials(mk(8, func(int) bool { return false }), 6)
	require.Len(t, got, 6)
	assert.Equal(t, "a", got[0].Name)

	assert.Nil(t, Essentials(nil, 6))
}
