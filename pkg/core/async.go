package core

import (
	"context"

	"github.com/jyntrix/memctx-go/pkg/contextpack"
)

// ContextResult is the outcome of an asynchronous context build.
type ContextResult struct {
	Context *contextpack.MemoryContext
	Err     error
}

// BuildContextAsync runs BuildContext in a goroutine and delivers the
// outcome on the returned channel. The channel is buffered, so the
// result is never lost if the caller reads late; cancel ctx to abandon
// the build.
func (c *Client) BuildContextAsync(ctx context.Context, userID, query string, opts ...BuildOption) <-chan ContextResult {
	out := make(chan ContextResult, 1)
	go func() {
		defer close(out)
		memoryContext, err := c.BuildContext(ctx, userID, query, opts...)
		out <- ContextResult{Context: memoryContext, Err: err}
	}()
	return out
}
