package pipeline

import (
	"log/slog"

	"github.com/corpusqa/pipelineengine/ports"
)

// Runtime bundles every host-process collaborator an action may call, plus
// process-level configuration, into one value handed to each Action.Run
// call. Built once per process (or per request, for ports that are
// request-scoped like Cancellation) by the host.
type Runtime struct {
	Retrieval ports.RetrievalBackend
	Graph     ports.GraphProvider
	LLM       ports.LLMClient
	Tokens    ports.TokenCounter
	History   ports.ConversationHistoryService
	Translate ports.Translator
	Trace     ports.TraceSink
	Cancel    ports.Cancellation

	PromptsDir      string
	StepDispatchCap int
	Logger          *slog.Logger

	Registry *Registry
}

// NewRuntime builds a Runtime with a discard logger if logger is nil, so
// callers that don't care about operator-facing logs don't need to wire
// one up themselves.
func NewRuntime(registry *Registry, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(discardWriter{}, nil))
	}
	return &Runtime{Registry: registry, Logger: logger, StepDispatchCap: 200}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
