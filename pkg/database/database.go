package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// Client holds the database handle
type Client struct {
	DB     *sql.DB
	driver string
}

// NewClient opens a Postgres connection and applies migrations
func NewClient(databaseURL string) (*Client, error) {
	return Open("postgres", databaseURL)
}

// Open connects with the given driver. Tests use "sqlite3" with an
// in-memory DSN; production always runs on "postgres".
func Open(driver, dsn string) (*Client, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", driver, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	c := &Client{DB: db, driver: driver}

	// Run migrations
	if err := c.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed creating schema resources: %w", err)
	}

	log.Println("✅ Database connected and migrations applied")

	return c, nil
}

// Driver returns the SQL driver name the client was opened with
func (c *Client) Driver() string {
	return c.driver
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.DB.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
