/*
Package flow provides small, composable primitives for building data
processing pipelines out of generic nodes: sequential chains, branches, loops,
batches, parallel fan-out, and async results.

# Core Concepts

Node is the fundamental building block: anything that turns an input into an
output.

	type Node[I any, O any] interface {
	    Run(ctx context.Context, input I) (O, error)
	}

Processor is a function type that can be used wherever a Node[I, O] is
expected by wrapping it with AsProcessor, or composed directly with Join,
OfNode, and OfProcessor via a Flow.

# Composition

Join chains a sequence of Node[any, any] values so each node's output becomes
the next node's input:

	chained, err := flow.Join(validate, normalize, persist)
	result, err := chained.Run(ctx, input)

Flow offers the same chaining with an incremental builder when nodes are
constructed one at a time:

	f := flow.NewFlow()
	f.WithNode(validate).WithNode(normalize)
	node, err := f.Compile()

# Branch, Loop, Batch, Parallel

Branch (branch.go) resolves a route name from the input/output of an inner
node and dispatches to one of several named successor nodes — the shape used
to implement conditional routing steps.

Loop (loop.go) re-runs an inner node on the same input each iteration until a
terminator function, which sees the latest output, says stop or a maximum
iteration count is reached — the shape used to implement bounded
retry/guard steps.

Batch (batch.go) splits an input into segments with a segmenter function,
runs a processor over each segment (optionally concurrently, up to a
configurable limit), and recombines the results with an aggregator.

Parallel (parallel.go) runs a fixed set of processors against the same input
concurrently and collects their results, with configurable wait semantics
(wait for all, wait for any, wait for a count) and failure tolerance.

# Async results

AsyncResult[T] (async.go) is a promise-like value: a producer calls SetResult
or SetError exactly once, any number of consumers can call Result to block
until it is available, and Fork creates a derived result that completes when
its parent does.
*/
package flow
