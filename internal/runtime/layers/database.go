package layers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
)

// sqlOpen is replaced in tests.
var sqlOpen = sql.Open

// DatabaseLayer reads name/value rows from one table. Rows are cached and
// only re-read by Reload.
type DatabaseLayer struct {
	db    *sql.DB
	table string
	owned bool

	mu      sync.RWMutex
	entries *ordered
}

// OpenDatabaseLayer opens the database and loads the table. The layer owns
// the connection and closes it on Close.
func OpenDatabaseLayer(ctx context.Context, driver, dsn, table string) (*DatabaseLayer, error) {
	if !config.ValidTableName(table) {
		return nil, fmt.Errorf("%w: databaseTable %q", errspkg.ErrInvalidParameter, table)
	}
	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("database layer: open %s: %w", driver, err)
	}
	l := &DatabaseLayer{db: db, table: table, owned: true, entries: newOrdered()}
	if err := l.Reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// NewDatabaseLayer wraps a connection the caller keeps owning. Call Reload
// to load the table.
func NewDatabaseLayer(db *sql.DB, table string) (*DatabaseLayer, error) {
	if !config.ValidTableName(table) {
		return nil, fmt.Errorf("%w: databaseTable %q", errspkg.ErrInvalidParameter, table)
	}
	return &DatabaseLayer{db: db, table: table, entries: newOrdered()}, nil
}

func (d *DatabaseLayer) Name() string { return "database" }
func (d *DatabaseLayer) Kind() Kind   { return KindDatabase }

func (d *DatabaseLayer) Get(key string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries.get(key)
}

func (d *DatabaseLayer) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.entries.names()
}

// Reload re-reads the table. NULL values are kept as empty strings.
func (d *DatabaseLayer) Reload(ctx context.Context) error {
	// The table name was checked against config.ValidTableName.
	rows, err := d.db.QueryContext(ctx, "SELECT name, value FROM "+d.table+" ORDER BY name")
	if err != nil {
		return fmt.Errorf("database layer: query %s: %w", d.table, err)
	}
	defer rows.Close()

	next := newOrdered()
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return fmt.Errorf("database layer: scan %s: %w", d.table, err)
		}
		next.set(name, value.String)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("database layer: read %s: %w", d.table, err)
	}

	d.mu.Lock()
	d.entries = next
	d.mu.Unlock()
	return nil
}

// Close releases the connection when the layer opened it.
func (d *DatabaseLayer) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}
