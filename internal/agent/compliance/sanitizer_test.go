package compliance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/grocery-agent-core/server/internal/core/error"
	"github.com/grocery-agent-core/server/internal/testutil"
)

func TestScrub(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"email", "my email is jane.doe+food@example.co.uk, show me apples", "my email is [EMAIL], show me apples"},
		{"phone", "call me on (555) 123-4567 about the order", "call me on [PHONE] about the order"},
		{"international phone", "whatsapp +44 7700 900 123 please", "whatsapp [PHONE] please"},
		{"card", "card 4111 1111 1111 1111 for milk", "card [CARD] for milk"},
		{"ssn", "id 123-45-6789", "id [ID]"},
		{"address", "I live at 123 Main St, what's good for pasta?", "I live at [ADDRESS], what's good for pasta?"},
		{"domain content kept", "add product 42 to cart, 2 lbs chicken at $7.99", "add product 42 to cart, 2 lbs chicken at $7.99"},
		{"recipe kept", "ingredients for butter chicken for 4 people", "ingredients for butter chicken for 4 people"},
		{"address with period", "ship to 123 Main St.", "ship to [ADDRESS]."},
		{"full street suffix", "deliver to 9 Elm Road please", "deliver to [ADDRESS] please"},
		{"count unit kept", "Add the Large Brown Eggs 12 ct to my cart", "Add the Large Brown Eggs 12 ct to my cart"},
		{"brand kept", "I want 2 packs of Dr Pepper", "I want 2 packs of Dr Pepper"},
		{"lowercase product kept", "Buy 3 st louis ribs", "Buy 3 st louis ribs"},
		{"product ids kept", "Add product ids 1001 2002 3003", "Add product ids 1001 2002 3003"},
		{"non-card digit run kept", "order 1234 5678 9012 3456 is late", "order 1234 5678 9012 3456 is late"},
		{"dotted phone", "text 555.123.4567", "text [PHONE]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Scrub(tt.input))
		})
	}
}

func TestScrubIdempotent(t *testing.T) {
	inputs := []string{
		"ingredients for butter chicken",
		"email a@b.io and phone 555-123-4567 at 9 Elm Road",
		"**Organic Honey** by Nature's Best - $7.99 (ID: 42)",
	}
	for _, in := range inputs {
		once := Scrub(in)
		assert.Equal(t, once, Scrub(once), in)
	}
}

func TestSanitizeWithModel(t *testing.T) {
	chat := &testutil.ChatModel{
		Respond: func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
			text := testutil.LastUserText(in)
			text = strings.Replace(text, "Hi, my name is John, ", "", 1)
			// a careless rewrite that reintroduces an email
			text = strings.Replace(text, "[EMAIL]", "john@example.com", 1)
			return schema.AssistantMessage(`"`+text+`"`, nil), nil
		},
	}
	s := NewSanitizer(chat, FailClosed, time.Second)

	got, err := s.Sanitize(context.Background(), "Hi, my name is John, I want butter chicken ingredients, mail john@example.com")
	require.NoError(t, err)
	assert.Equal(t, "I want butter chicken ingredients, mail [EMAIL]", got)
	assert.Equal(t, 1, chat.CallCount())
	assert.Equal(t, schema.System, chat.Calls()[0][0].Role)
}

func TestSanitizeIdempotentOnCleanInput(t *testing.T) {
	// an identity rewrite is what the prompt asks for on clean input
	chat := &testutil.ChatModel{
		Respond: func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
			return schema.AssistantMessage(testutil.LastUserText(in), nil), nil
		},
	}
	s := NewSanitizer(chat, FailClosed, time.Second)
	ctx := context.Background()

	for _, text := range []string{"ingredients for butter chicken", "You need 2 cups of flour (ID: 10) and sugar."} {
		once, err := s.Sanitize(ctx, text)
		require.NoError(t, err)
		twice, err := s.Sanitize(ctx, once)
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	}
}

func TestSanitizeErrors(t *testing.T) {
	tests := []struct {
		name string
		chat *testutil.ChatModel
	}{
		{"model error", &testutil.ChatModel{Err: errors.New("quota exceeded")}},
		{"empty output", &testutil.ChatModel{Replies: []*schema.Message{schema.AssistantMessage("  ", nil)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSanitizer(tt.chat, FailOpen, time.Second).Sanitize(context.Background(), "hello")
			require.Error(t, err)
			assert.ErrorIs(t, err, errx.ErrSanitizerFailed)
		})
	}
}

func TestSanitizeRegexOnly(t *testing.T) {
	got, err := NewSanitizer(nil, FailClosed, 0).Sanitize(context.Background(), "reach me at a@b.io")
	require.NoError(t, err)
	assert.Equal(t, "reach me at [EMAIL]", got)
}

func TestSanitizePairPolicies(t *testing.T) {
	failing := func() *testutil.ChatModel {
		return &testutil.ChatModel{Err: errors.New("timeout")}
	}
	query := "I'm Sarah, sarah@example.com, ingredients for pasta"
	response := "You need pasta and tomatoes."

	t.Run("fail closed skips", func(t *testing.T) {
		q, r, ok := NewSanitizer(failing(), FailClosed, time.Second).SanitizePair(context.Background(), query, response)
		assert.False(t, ok)
		assert.Empty(t, q)
		assert.Empty(t, r)
	})

	t.Run("fail open never returns raw text", func(t *testing.T) {
		q, r, ok := NewSanitizer(failing(), FailOpen, time.Second).SanitizePair(context.Background(), query, response)
		assert.True(t, ok)
		assert.NotContains(t, q, "sarah@example.com")
		assert.Equal(t, "I'm Sarah, [EMAIL], ingredients for pasta", q)
		assert.Equal(t, response, r)
	})

	t.Run("success runs both", func(t *testing.T) {
		chat := &testutil.ChatModel{
			Respond: func(_ context.Context, in []*schema.Message) (*schema.Message, error) {
				return schema.AssistantMessage(strings.Replace(testutil.LastUserText(in), "I'm Sarah, ", "", 1), nil), nil
			},
		}
		q, r, ok := NewSanitizer(chat, FailClosed, time.Second).SanitizePair(context.Background(), query, response)
		assert.True(t, ok)
		assert.Equal(t, "[EMAIL], ingredients for pasta", q)
		assert.Equal(t, response, r)
		assert.Equal(t, 2, chat.CallCount())
	})
}

func TestParseFailurePolicy(t *testing.T) {
	assert.Equal(t, FailOpen, ParseFailurePolicy(" FAIL_OPEN "))
	assert.Equal(t, FailClosed, ParseFailurePolicy("fail_closed"))
	assert.Equal(t, FailClosed, ParseFailurePolicy(""))
}
