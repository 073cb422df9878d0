package tools

import (
	"context"
	"log"
	"time"
)

// ToolFunc defines a function executed asynchronously.
type ToolFunc func(ctx context.Context) error

// Dispatch runs the provided tool in a separate goroutine. fire-and-forget solution;
// failures are only logged under the tool name.
func Dispatch(ctx context.Context, name string, fn ToolFunc) {
	go func() {
		start := time.Now()
		if err := fn(ctx); err != nil {
			log.Printf("[%s] failed after %s: %v", name, time.Since(start).Round(time.Millisecond), err)
		}
	}()
}
