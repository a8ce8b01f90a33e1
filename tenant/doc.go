// Package tenant provides the tenant scope carried by every unit of work.
//
// The scope is propagated via context.Context, never via ambient mutable
// state, so it survives goroutine hand-off and asynchronous dispatch without
// any possibility of bleeding between units of work that share a pooled
// worker.
package tenant
