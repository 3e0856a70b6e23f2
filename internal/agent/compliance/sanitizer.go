// Package compliance strips personal data from text before it is cached.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"golang.org/x/sync/errgroup"

	"github.com/grocery-agent-core/server/internal/agent/graph/prompts"
	errx "github.com/grocery-agent-core/server/internal/core/error"
	logx "github.com/grocery-agent-core/server/pkg/logger"
)

// FailurePolicy decides what is cached when the model rewrite fails.
type FailurePolicy string

const (
	// FailClosed skips the cache write.
	FailClosed FailurePolicy = "fail_closed"
	// FailOpen caches the regex-scrubbed text. Names may survive.
	FailOpen FailurePolicy = "fail_open"
)

func ParseFailurePolicy(s string) FailurePolicy {
	if FailurePolicy(strings.ToLower(strings.TrimSpace(s))) == FailOpen {
		return FailOpen
	}
	return FailClosed
}

// Sanitizer removes PII with a regex pass followed by a model rewrite. A nil
// chat model runs the regex pass only.
type Sanitizer struct {
	chat    model.BaseChatModel
	policy  FailurePolicy
	timeout time.Duration
}

func NewSanitizer(chat model.BaseChatModel, policy FailurePolicy, timeout time.Duration) *Sanitizer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Sanitizer{chat: chat, policy: policy, timeout: timeout}
}

func (s *Sanitizer) Policy() FailurePolicy {
	return s.policy
}

// Sanitize returns text with personal spans removed. Errors wrap
// errx.ErrSanitizerFailed and are returned regardless of policy.
func (s *Sanitizer) Sanitize(ctx context.Context, text string) (string, error) {
	scrubbed := Scrub(text)
	if s.chat == nil || strings.TrimSpace(scrubbed) == "" {
		return scrubbed, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msgs, err := prompts.SanitizerMessages(ctx, scrubbed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errx.ErrSanitizerFailed, err)
	}
	out, err := s.chat.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errx.ErrSanitizerFailed, errx.WrapModel(err))
	}
	rewritten := strings.Trim(strings.TrimSpace(out.Content), `"`)
	if rewritten == "" {
		return "", fmt.Errorf("%w: %w", errx.ErrSanitizerFailed, errx.ErrEmptyModelOutput)
	}
	// the model output is not trusted to be clean
	return Scrub(rewritten), nil
}

// SanitizePair sanitizes a query and its response concurrently. ok is false
// when nothing may be cached.
func (s *Sanitizer) SanitizePair(ctx context.Context, query, response string) (cleanQuery, cleanResponse string, ok bool) {
	var g errgroup.Group
	var qErr, rErr error
	g.Go(func() error {
		cleanQuery, qErr = s.Sanitize(ctx, query)
		return nil
	})
	g.Go(func() error {
		cleanResponse, rErr = s.Sanitize(ctx, response)
		return nil
	})
	_ = g.Wait()

	if err := errors.Join(qErr, rErr); err != nil {
		if s.policy == FailOpen {
			logx.Warn().Err(err).Msg("Sanitizer failed; caching regex-scrubbed text only, names may remain")
			return Scrub(query), Scrub(response), true
		}
		logx.Warn().Err(err).Msg("Sanitizer failed; skipping cache write")
		return "", "", false
	}
	return cleanQuery, cleanResponse, true
}
