package async

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"go.uber.org/zap"
)

// TaskContext holds context values that should be propagated to async tasks
type TaskContext struct {
	CorrelationID string
	SessionID     string
	StartTime     time.Time
	TaskName      string
}

// CaptureContext captures the current context values for async propagation
func CaptureContext(ctx context.Context, taskName string) TaskContext {
	return TaskContext{
		CorrelationID: logger.CorrelationIDFromContext(ctx),
		SessionID:     logger.SessionIDFromContext(ctx),
		StartTime:     time.Now(),
		TaskName:      taskName,
	}
}

// Inject copies the captured values into ctx.
func (tc TaskContext) Inject(ctx context.Context) context.Context {
	if tc.CorrelationID != "" {
		ctx = logger.ContextWithCorrelationID(ctx, tc.CorrelationID)
	}
	if tc.SessionID != "" {
		ctx = logger.ContextWithSessionID(ctx, tc.SessionID)
	}
	return ctx
}

// Go runs fn in a goroutine that shares ctx's values and cancellation.
// Panics are recovered and logged.
//
// Usage:
//
//	async.Go(ctx, "fetch-nearby-places", func(ctx context.Context) {
//	    places, err := provider.FindNearbyPlaces(ctx, 20)
//	    ...
//	})
func Go(ctx context.Context, taskName string, fn func(ctx context.Context)) {
	tc := CaptureContext(ctx, taskName)

	go func() {
		defer recoverWithLogging(ctx, tc)
		fn(ctx)
		logCompleted(ctx, tc)
	}()
}

// GoDetached runs fn on a fresh background context that keeps ctx's values
// but not its cancellation, for work that must outlive the caller.
func GoDetached(ctx context.Context, taskName string, timeout time.Duration, fn func(ctx context.Context)) {
	tc := CaptureContext(ctx, taskName)

	go func() {
		newCtx, cancel := context.WithTimeout(tc.Inject(context.Background()), timeout)
		defer cancel()
		defer recoverWithLogging(newCtx, tc)

		fn(newCtx)
		logCompleted(newCtx, tc)
	}()
}

// Group owns a set of goroutines sharing one cancellable context.
// Stop cancels the context and waits for every task to return.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewGroup derives the group context from parent.
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{ctx: ctx, cancel: cancel}
}

// Context returns the group context. It is done once Stop is called.
func (g *Group) Context() context.Context {
	return g.ctx
}

// Go starts fn bound to the group context.
func (g *Group) Go(taskName string, fn func(ctx context.Context)) {
	g.GoWith(g.ctx, taskName, fn)
}

// GoWith starts fn with ctx, which must derive from the group context, and
// tracks it so Stop waits for it.
func (g *Group) GoWith(ctx context.Context, taskName string, fn func(ctx context.Context)) {
	tc := CaptureContext(ctx, taskName)
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()
		defer recoverWithLogging(ctx, tc)
		fn(ctx)
		logCompleted(ctx, tc)
	}()
}

// Stop cancels every task and blocks until they return. Must not be called
// from inside a task of the same group.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
}

func logCompleted(ctx context.Context, tc TaskContext) {
	logger.DebugContext(ctx, "async task completed",
		zap.String("task", tc.TaskName),
		zap.Duration("duration", time.Since(tc.StartTime)),
	)
}

// recoverWithLogging recovers from panics and logs them with context
func recoverWithLogging(ctx context.Context, tc TaskContext) {
	if r := recover(); r != nil {
		logger.ErrorContext(tc.Inject(ctx), "async task panicked",
			zap.String("task", tc.TaskName),
			zap.Any("panic", r),
			zap.String("stack", string(debug.Stack())),
		)
	}
}
