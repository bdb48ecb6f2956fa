package flow

import (
	"context"
	"errors"
)

// Flow chains a node to an optional successor, passing each node's output
// as the next node's input. It is the simplest way to compose a sequence of
// Node[any, any] values without hand-writing the plumbing each time.
type Flow struct {
	node      Node[any, any]
	successor *Flow
}

func NewFlow() *Flow {
	return &Flow{}
}

func (f *Flow) Run(ctx context.Context, input any) (any, error) {
	if f.node == nil {
		return nil, errors.New("flow node is required")
	}
	output, err := f.node.Run(ctx, input)
	if err != nil {
		return nil, err
	}
	if f.successor == nil || f.successor.node == nil {
		return output, nil
	}
	return f.successor.Run(ctx, output)
}

// Then returns the successor Flow, creating it if this Flow already has a
// node configured. Calling Then on an empty Flow is a no-op that returns
// the same Flow, so callers can chain WithNode().Then().WithNode()... .
func (f *Flow) Then() *Flow {
	if f.node == nil {
		return f
	}
	f.successor = NewFlow()
	return f.successor
}

// WithNode sets this Flow's node and advances to its successor.
func (f *Flow) WithNode(node Node[any, any]) *Flow {
	f.node = node
	return f.Then()
}

// Compile validates the Flow and returns it as a Node, pruning a trailing
// empty successor left over from the last WithNode/Then call.
func (f *Flow) Compile() (Node[any, any], error) {
	if f.node == nil {
		return nil, errors.New("flow node is required")
	}
	if f.successor != nil && f.successor.node == nil {
		f.successor = nil
	}
	return f, nil
}
