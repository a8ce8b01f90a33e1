// Package sqlpersistence provides an implementation of the persistence
// contract backed by an SQL database.
package sqlpersistence

import (
	"context"
	"fmt"

	"database/sql"

	"github.com/Broccode/acci-eaf-sub000/persistence"
)

// Provider is an implementation of persistence.Provider that stores data in
// an SQL database.
type Provider struct {
	// DB is the SQL database to use.
	DB *sql.DB

	// Driver is the database's driver. It must be compatible with DB.
	Driver Driver
}

// Open returns a data store backed by the provider's database.
//
// The schema must already exist; use CreateSchema() to create it.
func (p *Provider) Open(ctx context.Context) (persistence.DataStore, error) {
	if err := p.Driver.IsCompatibleWith(ctx, p.DB); err != nil {
		return nil, fmt.Errorf(
			"%T is not compatible with the given database: %w",
			p.Driver,
			err,
		)
	}

	return newDataStore(p.DB, p.Driver), nil
}

// CreateSchema creates the SQL schema elements required by the given driver.
func CreateSchema(ctx context.Context, db *sql.DB, d Driver) error {
	return d.CreateSchema(ctx, db)
}

// DropSchema removes the SQL schema elements created by CreateSchema().
func DropSchema(ctx context.Context, db *sql.DB, d Driver) error {
	return d.DropSchema(ctx, db)
}
