package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/corpusqa/pipelineengine/ports"
)

// Fake is a deterministic in-memory ports.LLMClient: it returns scripted
// responses by call index, falling back to echoing the prompt when the
// script is exhausted. Intended for exercising call_model and the routers
// in tests, not as a production client.
type Fake struct {
	mu        sync.Mutex
	Responses []string
	calls     int

	AskCalls    []string
	AskChatCalls []ChatCall
}

// ChatCall records one AskChat invocation for assertions in tests.
type ChatCall struct {
	System  string
	User    string
	History []ports.ChatMessage
}

var _ ports.LLMClient = (*Fake)(nil)

// NewFake builds a Fake that returns responses in order, one per call
// across Ask and AskChat combined.
func NewFake(responses ...string) *Fake {
	return &Fake{Responses: responses}
}

func (f *Fake) next(echo string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls < len(f.Responses) {
		r := f.Responses[f.calls]
		f.calls++
		return r
	}
	f.calls++
	return fmt.Sprintf("echo: %s", echo)
}

func (f *Fake) Ask(_ context.Context, prompt string, _ *ports.GenOptions) (string, error) {
	f.mu.Lock()
	f.AskCalls = append(f.AskCalls, prompt)
	f.mu.Unlock()
	return f.next(prompt), nil
}

func (f *Fake) AskChat(_ context.Context, system, user string, history []ports.ChatMessage, _ *ports.GenOptions) (string, error) {
	f.mu.Lock()
	f.AskChatCalls = append(f.AskChatCalls, ChatCall{System: system, User: user, History: history})
	f.mu.Unlock()
	return f.next(user), nil
}
