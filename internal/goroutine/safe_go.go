package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
)

// SafeGo runs fn in a goroutine and turns a panic into a logged error
// instead of crashing the process.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorf("panic in goroutine: %v\nstack trace:\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// SafeGoWithContext is SafeGo for context-aware functions.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	SafeGo(func() { fn(ctx) })
}
