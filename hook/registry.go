package hook

import (
	"context"
	"log/slog"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type leaseAcquiredEntry struct {
	name string
	hook LeaseAcquired
}

type acquireRejectedEntry struct {
	name string
	hook AcquireRejected
}

type leaseReleasedEntry struct {
	name string
	hook LeaseReleased
}

type sweepCompletedEntry struct {
	name string
	hook SweepCompleted
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	leaseAcquired   []leaseAcquiredEntry
	acquireRejected []acquireRejectedEntry
	leaseReleased   []leaseReleasedEntry
	sweepCompleted  []sweepCompletedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(LeaseAcquired); ok {
		r.leaseAcquired = append(r.leaseAcquired, leaseAcquiredEntry{name, h})
	}
	if h, ok := e.(AcquireRejected); ok {
		r.acquireRejected = append(r.acquireRejected, acquireRejectedEntry{name, h})
	}
	if h, ok := e.(LeaseReleased); ok {
		r.leaseReleased = append(r.leaseReleased, leaseReleasedEntry{name, h})
	}
	if h, ok := e.(SweepCompleted); ok {
		r.sweepCompleted = append(r.sweepCompleted, sweepCompletedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitLeaseAcquired notifies all extensions that implement LeaseAcquired.
func (r *Registry) EmitLeaseAcquired(ctx context.Context, channelID string, takeover bool) {
	for _, e := range r.leaseAcquired {
		if err := e.hook.OnLeaseAcquired(ctx, channelID, takeover); err != nil {
			r.logHookError("OnLeaseAcquired", e.name, err)
		}
	}
}

// EmitAcquireRejected notifies all extensions that implement AcquireRejected.
func (r *Registry) EmitAcquireRejected(ctx context.Context, channelID, reason string) {
	for _, e := range r.acquireRejected {
		if err := e.hook.OnAcquireRejected(ctx, channelID, reason); err != nil {
			r.logHookError("OnAcquireRejected", e.name, err)
		}
	}
}

// EmitLeaseReleased notifies all extensions that implement LeaseReleased.
func (r *Registry) EmitLeaseReleased(ctx context.Context, channelID string) {
	for _, e := range r.leaseReleased {
		if err := e.hook.OnLeaseReleased(ctx, channelID); err != nil {
			r.logHookError("OnLeaseReleased", e.name, err)
		}
	}
}

// EmitSweepCompleted notifies all extensions that implement SweepCompleted.
func (r *Registry) EmitSweepCompleted(ctx context.Context, leasesRemoved, instancesRemoved int64) {
	for _, e := range r.sweepCompleted {
		if err := e.hook.OnSweepCompleted(ctx, leasesRemoved, instancesRemoved); err != nil {
			r.logHookError("OnSweepCompleted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Hook errors never propagate; an
// extension must not be able to break the coordination protocol.
func (r *Registry) logHookError(hookName, extName string, err error) {
	r.logger.Error("extension hook error",
		slog.String("hook", hookName),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
