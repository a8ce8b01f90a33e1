// Package eaf provides a multi-tenant event-sourcing engine.
//
// The engine stores events in tenant-isolated streams with optimistic
// concurrency control, assigns a gap-free global order across all streams,
// publishes committed events over a message transport, and drives projection
// handlers with an exactly-once effect per event.
package eaf

import (
	"context"

	"github.com/Broccode/acci-eaf-sub000/eventstore"
	"github.com/Broccode/acci-eaf-sub000/eventstream"
	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/projection"
	"github.com/Broccode/acci-eaf-sub000/semaphore"
	"golang.org/x/sync/errgroup"
)

// dataStoreKey is the key under which the engine's data store is cached in
// its data store set.
const dataStoreKey = "engine"

// Engine hosts the event store, the event relay and the projection
// consumers.
type Engine struct {
	opts       *engineOptions
	dataStores *persistence.DataStoreSet
}

// New returns a new engine configured by the given options.
func New(options ...EngineOption) *Engine {
	opts := resolveEngineOptions(options...)

	return &Engine{
		opts: opts,
		dataStores: &persistence.DataStoreSet{
			Provider: opts.PersistenceProvider,
		},
	}
}

// Store returns the engine's event store, opening the underlying data store
// if necessary.
func (e *Engine) Store(ctx context.Context) (*eventstore.Store, error) {
	ds, err := e.dataStores.Get(ctx, dataStoreKey)
	if err != nil {
		return nil, err
	}

	return &eventstore.Store{
		DataStore: ds,
		Logger:    e.opts.Logger,
	}, nil
}

// Run runs the engine until ctx is canceled or an error occurs.
//
// If a transport is configured, a relay publishes committed events from the
// global stream onto the transport, and registered projections consume them
// from the transport. Without a transport, projections consume the global
// stream directly.
func (e *Engine) Run(ctx context.Context) error {
	defer e.dataStores.Close()

	store, err := e.Store(ctx)
	if err != nil {
		return err
	}

	sem := semaphore.New(int(e.opts.ConcurrencyLimit))

	parent := ctx
	g, ctx := errgroup.WithContext(ctx)

	if e.opts.Transport != nil {
		g.Go(func() error {
			return e.runRelay(ctx, store, sem)
		})

		if len(e.opts.Registry.Handlers()) != 0 {
			g.Go(func() error {
				return e.runBusProjections(ctx, store.DataStore, sem)
			})
		}
	} else {
		for _, h := range e.opts.Registry.Handlers() {
			h := h // capture loop variable

			g.Go(func() error {
				return e.runStreamProjection(ctx, store, h, sem)
			})
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		return ctx.Err()
	})

	err = g.Wait()

	if parent.Err() != nil {
		return parent.Err()
	}

	return err
}

// runRelay publishes committed events from the global stream onto the
// transport.
func (e *Engine) runRelay(
	ctx context.Context,
	store *eventstore.Store,
	sem semaphore.Semaphore,
) error {
	c := &eventstream.Consumer{
		Stream: store,
		Handler: &relay{
			DataStore: store.DataStore,
			Publisher: &messaging.Publisher{
				Transport: e.opts.Transport,
				Logger:    e.opts.Logger,
			},
			Subject: e.opts.StreamSubject,
			Logger:  e.opts.Logger,
		},
		Semaphore:       sem,
		BackoffStrategy: e.opts.MessageBackoff,
		Logger:          e.opts.Logger,
	}

	return c.Run(ctx)
}

// runBusProjections feeds events received from the transport to every
// registered projection.
func (e *Engine) runBusProjections(
	ctx context.Context,
	ds persistence.DataStore,
	sem semaphore.Semaphore,
) error {
	c := &messaging.Consumer{
		Transport: e.opts.Transport,
		Pattern:   e.opts.StreamSubject + ".*",
		Handler: &projection.Runner{
			DataStore: ds,
			Registry:  &e.opts.Registry,
			Logger:    e.opts.Logger,
		},
		Semaphore:       sem,
		BackoffStrategy: e.opts.MessageBackoff,
		Logger:          e.opts.Logger,
	}

	return c.Run(ctx)
}

// runStreamProjection drives a single projection directly from the event
// store's global stream.
func (e *Engine) runStreamProjection(
	ctx context.Context,
	store *eventstore.Store,
	h projection.Handler,
	sem semaphore.Semaphore,
) error {
	c := &eventstream.Consumer{
		Stream: store,
		Handler: &projection.StreamAdaptor{
			Handler:    h,
			EventTypes: e.opts.Registry.EventTypes(h.Name()),
			DataStore:  store.DataStore,
			Logger:     e.opts.Logger,
		},
		Semaphore:       sem,
		BackoffStrategy: e.opts.MessageBackoff,
		Logger:          e.opts.Logger,
	}

	return c.Run(ctx)
}
