// Package main runs a minimal ticketing daemon on the engine: a SQLite or
// BoltDB event store, a message transport and a ticket-summary projection.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	eaf "github.com/Broccode/acci-eaf-sub000"
	"github.com/Broccode/acci-eaf-sub000/messaging"
	"github.com/Broccode/acci-eaf-sub000/messaging/kafkatransport"
	"github.com/Broccode/acci-eaf-sub000/messaging/memorytransport"
	"github.com/Broccode/acci-eaf-sub000/persistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/boltpersistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/sqlpersistence"
	"github.com/Broccode/acci-eaf-sub000/persistence/sqlpersistence/sqlite"
	"github.com/caarlos0/env/v11"
	"github.com/dogmatiq/dodeca/logging"
	_ "github.com/mattn/go-sqlite3"
)

// config is the daemon's configuration, loaded from the environment.
type config struct {
	// Store selects the persistence backend, "sqlite" or "bolt".
	Store string `env:"TICKETD_STORE" envDefault:"sqlite"`

	// SQLiteDSN is the SQLite data source name used when Store is "sqlite".
	SQLiteDSN string `env:"TICKETD_SQLITE_DSN" envDefault:"file:ticketd.db?_busy_timeout=5000&_journal_mode=WAL"`

	// BoltPath is the BoltDB file path used when Store is "bolt".
	BoltPath string `env:"TICKETD_BOLT_PATH" envDefault:"ticketd.boltdb"`

	// Transport selects the message transport, "memory" or "kafka".
	Transport string `env:"TICKETD_TRANSPORT" envDefault:"memory"`

	// KafkaBrokers is the set of seed brokers used when Transport is
	// "kafka".
	KafkaBrokers []string `env:"TICKETD_KAFKA_BROKERS" envSeparator:","`

	// KafkaGroup is the consumer group joined when Transport is "kafka".
	KafkaGroup string `env:"TICKETD_KAFKA_GROUP" envDefault:"ticketd"`

	// StreamSubject is the subject prefix under which events are published.
	StreamSubject string `env:"TICKETD_STREAM_SUBJECT" envDefault:"tickets"`

	// ConcurrencyLimit is the number of events handled concurrently.
	ConcurrencyLimit uint `env:"TICKETD_CONCURRENCY_LIMIT"`
}

// newContext returns a cancelable context that is canceled when the process
// receives a SIGTERM or SIGINT.
func newContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case <-sig:
			cancel()
		}
	}()

	return ctx, cancel
}

func main() {
	ctx, cancel := newContext()
	defer cancel()

	if err := run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Println(err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	provider, cleanup, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	transport, err := newTransport(cfg)
	if err != nil {
		return err
	}

	logger := logging.DebugLogger

	engine := eaf.New(
		eaf.WithPersistence(provider),
		eaf.WithTransport(transport),
		eaf.WithProjection(
			&ticketSummaryProjection{},
			"TicketCreated",
			"TicketClosed",
		),
		eaf.WithStreamSubject(cfg.StreamSubject),
		eaf.WithConcurrencyLimit(cfg.ConcurrencyLimit),
		eaf.WithLogger(logger),
	)

	logging.Log(
		logger,
		"ticketd starting with %s store and %s transport",
		cfg.Store,
		cfg.Transport,
	)

	return engine.Run(ctx)
}

// newProvider returns the persistence provider selected by the
// configuration.
func newProvider(
	ctx context.Context,
	cfg config,
) (persistence.Provider, func(), error) {
	switch cfg.Store {
	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}

		if err := sqlpersistence.CreateSchema(
			ctx,
			db,
			sqlite.Driver{},
		); err != nil {
			db.Close()
			return nil, nil, err
		}

		return &sqlpersistence.Provider{
				DB:     db,
				Driver: sqlite.Driver{},
			}, func() {
				db.Close()
			}, nil

	case "bolt":
		return &boltpersistence.FileProvider{
			Path: cfg.BoltPath,
		}, func() {}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store %q", cfg.Store)
	}
}

// newTransport returns the message transport selected by the configuration.
func newTransport(cfg config) (messaging.Transport, error) {
	switch cfg.Transport {
	case "memory":
		return &memorytransport.Transport{}, nil

	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("TICKETD_KAFKA_BROKERS is required")
		}

		return &kafkatransport.Transport{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.KafkaGroup,
			ClientID: "ticketd",
		}, nil

	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
}
