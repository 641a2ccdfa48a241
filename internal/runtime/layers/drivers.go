package layers

// Drivers accepted by config.SupportedDrivers.
import (
	_ "github.com/jackc/pgx/v5/stdlib" // pgx
	_ "github.com/lib/pq"              // postgres
	_ "github.com/mattn/go-sqlite3"    // sqlite3
	_ "modernc.org/sqlite"             // sqlite
)
