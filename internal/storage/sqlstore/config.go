package sqlstore

import "time"

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database connection settings
type Config struct {
	// Driver selects the dialect: "postgres" or "sqlite"
	Driver string
	// DSN is the driver-specific connection string
	DSN string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ConnectAttempts is how many times to try reaching the database before
	// giving up, to ride out a database container that is still starting.
	ConnectAttempts int
}

// DefaultConfig returns sensible defaults for a Postgres deployment
func DefaultConfig() Config {
	return Config{
		Driver:          DriverPostgres,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnectAttempts: 10,
	}
}
