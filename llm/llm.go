// Package llm provides the ports.LLMClient middleware stack (safeguard
// against sensitive input, panic recovery) and a deterministic in-memory
// fake used to exercise call_model in tests without a network dependency.
// The concrete production model SDK is an external collaborator out of
// scope for this repository.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/corpusqa/pipelineengine/pkg/safe"
	"github.com/corpusqa/pipelineengine/ports"
)

// Middleware wraps a ports.LLMClient with additional behavior without
// changing its signature, mirroring the teacher's call/stream middleware
// pairing but collapsed onto the single synchronous LLMClient port this
// spec needs.
type Middleware func(ports.LLMClient) ports.LLMClient

// Chain applies middlewares to client in order, so the first middleware in
// the slice is outermost (runs first on the way in, last on the way out).
func Chain(client ports.LLMClient, middlewares ...Middleware) ports.LLMClient {
	wrapped := client
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// ErrSensitiveText is returned by the safeguard middleware when a prompt or
// user part contains a configured sensitive word.
var ErrSensitiveText = errors.New("llm: input contains sensitive vocabulary")

type safeguard struct {
	next           ports.LLMClient
	sensitiveWords []string
}

func (s *safeguard) check(texts ...string) error {
	if len(s.sensitiveWords) == 0 {
		return nil
	}
	joined := strings.Join(texts, "\n")
	for _, word := range s.sensitiveWords {
		if word != "" && strings.Contains(joined, word) {
			return fmt.Errorf("%w: %q", ErrSensitiveText, word)
		}
	}
	return nil
}

func (s *safeguard) Ask(ctx context.Context, prompt string, opts *ports.GenOptions) (string, error) {
	if err := s.check(prompt); err != nil {
		return "", err
	}
	return s.next.Ask(ctx, prompt, opts)
}

func (s *safeguard) AskChat(ctx context.Context, system, user string, history []ports.ChatMessage, opts *ports.GenOptions) (string, error) {
	if err := s.check(user); err != nil {
		return "", err
	}
	return s.next.AskChat(ctx, system, user, history, opts)
}

// Safeguard rejects any call whose prompt/user text contains one of
// sensitiveWords. The system prompt is never checked — it is always
// operator-controlled, never user-influenced (spec.md §4.4).
func Safeguard(sensitiveWords []string) Middleware {
	return func(next ports.LLMClient) ports.LLMClient {
		return &safeguard{next: next, sensitiveWords: sensitiveWords}
	}
}

type recovering struct {
	next ports.LLMClient
}

func (r *recovering) Ask(ctx context.Context, prompt string, opts *ports.GenOptions) (resp string, err error) {
	safe.WithRecover(func() {
		resp, err = r.next.Ask(ctx, prompt, opts)
	}, func(panicErr error) {
		err = errors.Join(err, panicErr)
	})()
	return
}

func (r *recovering) AskChat(ctx context.Context, system, user string, history []ports.ChatMessage, opts *ports.GenOptions) (resp string, err error) {
	safe.WithRecover(func() {
		resp, err = r.next.AskChat(ctx, system, user, history, opts)
	}, func(panicErr error) {
		err = errors.Join(err, panicErr)
	})()
	return
}

// Recover wraps an LLMClient so a panic inside the underlying call (a
// buggy SDK, a nil-pointer edge case) surfaces as an error instead of
// crashing the run.
func Recover() Middleware {
	return func(next ports.LLMClient) ports.LLMClient {
		return &recovering{next: next}
	}
}
