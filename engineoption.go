package eaf

import (
	"runtime"
	"time"

	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/boltpersistence"
	"github.com/Broccode/acci-eaf-sub000/projection"
	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
)

var (
	// DefaultPersistenceProvider is the default persistence provider.
	//
	// It is overridden by the WithPersistence() option.
	DefaultPersistenceProvider persistence.Provider = &boltpersistence.FileProvider{
		Path: "/var/run/eaf.boltdb",
	}

	// DefaultMessageBackoff is the default backoff strategy for restarting
	// consumers after a failure.
	//
	// It is overridden by the WithMessageBackoff() option.
	DefaultMessageBackoff backoff.Strategy = backoff.WithTransforms(
		backoff.Exponential(100*time.Millisecond),
		linger.FullJitter,
		linger.Limiter(0, 1*time.Hour),
	)

	// DefaultConcurrencyLimit is the default number of events to handle
	// concurrently.
	//
	// It is overridden by the WithConcurrencyLimit() option.
	DefaultConcurrencyLimit = uint(runtime.GOMAXPROCS(0) * 2)

	// DefaultStreamSubject is the default subject prefix under which the
	// engine publishes committed events.
	//
	// It is overridden by the WithStreamSubject() option.
	DefaultStreamSubject = "events"

	// DefaultLogger is the default target for log messages produced by the
	// engine.
	//
	// It is overridden by the WithLogger() option.
	DefaultLogger = logging.DefaultLogger
)

// EngineOption configures the behavior of an engine.
type EngineOption func(*engineOptions)

// WithPersistence returns an engine option that sets the persistence provider
// used to store and retrieve events, snapshots and read-models.
//
// If this option is omitted or p is nil, DefaultPersistenceProvider is used.
func WithPersistence(p persistence.Provider) EngineOption {
	return func(opts *engineOptions) {
		opts.PersistenceProvider = p
	}
}

// WithTransport returns an engine option that sets the message transport used
// to publish committed events and to feed projections.
//
// If this option is omitted or t is nil, events are not published and
// projections consume the event store's global stream directly.
func WithTransport(t messaging.Transport) EngineOption {
	return func(opts *engineOptions) {
		opts.Transport = t
	}
}

// WithProjection returns an engine option that registers a projection handler
// with the engine.
//
// If eventTypes are given the handler is only presented with events of those
// types; otherwise it is presented with every event.
//
// It panics if a handler with the same name has already been registered.
func WithProjection(h projection.Handler, eventTypes ...string) EngineOption {
	return func(opts *engineOptions) {
		opts.Registry.Register(h, eventTypes...)
	}
}

// WithMessageBackoff returns an engine option that sets the backoff strategy
// used to delay consumer restarts after a failure.
//
// If this option is omitted or s is nil DefaultMessageBackoff is used.
func WithMessageBackoff(s backoff.Strategy) EngineOption {
	return func(opts *engineOptions) {
		opts.MessageBackoff = s
	}
}

// WithConcurrencyLimit returns an engine option that limits the number of
// events that will be handled at the same time.
//
// If this option is omitted or n is non-positive DefaultConcurrencyLimit is
// used.
func WithConcurrencyLimit(n uint) EngineOption {
	return func(opts *engineOptions) {
		opts.ConcurrencyLimit = n
	}
}

// WithStreamSubject returns an engine option that sets the subject prefix
// under which committed events are published.
//
// An event of type T is published on the subject "<prefix>.<T>". If this
// option is omitted or s is empty DefaultStreamSubject is used.
func WithStreamSubject(s string) EngineOption {
	return func(opts *engineOptions) {
		opts.StreamSubject = s
	}
}

// WithLogger returns an engine option that sets the target for log messages
// produced by the engine.
//
// If this option is omitted or l is nil DefaultLogger is used.
func WithLogger(l logging.Logger) EngineOption {
	return func(opts *engineOptions) {
		opts.Logger = l
	}
}

// engineOptions is a container for a fully-resolved set of engine options.
type engineOptions struct {
	PersistenceProvider persistence.Provider
	Transport           messaging.Transport
	Registry            projection.Registry
	MessageBackoff      backoff.Strategy
	ConcurrencyLimit    uint
	StreamSubject       string
	Logger              logging.Logger
}

// resolveEngineOptions returns a fully-populated set of engine options built
// from the given set of option functions.
func resolveEngineOptions(options ...EngineOption) *engineOptions {
	opts := &engineOptions{}

	for _, o := range options {
		o(opts)
	}

	if opts.PersistenceProvider == nil {
		opts.PersistenceProvider = DefaultPersistenceProvider
	}

	if opts.MessageBackoff == nil {
		opts.MessageBackoff = DefaultMessageBackoff
	}

	if opts.ConcurrencyLimit == 0 {
		opts.ConcurrencyLimit = DefaultConcurrencyLimit
	}

	if opts.StreamSubject == "" {
		opts.StreamSubject = DefaultStreamSubject
	}

	if opts.Logger == nil {
		opts.Logger = DefaultLogger
	}

	return opts
}
