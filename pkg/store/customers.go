package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shmuelia/leadsmanager/pkg/models"
)

// CustomerStore persists tenants
type CustomerStore struct {
	db *sql.DB
}

// Create inserts a customer
func (s *CustomerStore) Create(ctx context.Context, c *models.Customer) error {
	c.CreatedAt = time.Now()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, active, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		c.Name, c.Active, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// GetByID fetches one customer
func (s *CustomerStore) GetByID(ctx context.Context, id int) (*models.Customer, error) {
	var c models.Customer
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, active, created_at FROM customers WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return &c, nil
}

// Exists reports whether a customer id refers to an active tenant
func (s *CustomerStore) Exists(ctx context.Context, id int) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM customers WHERE id = $1 AND active = TRUE`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check customer: %w", err)
	}
	return true, nil
}

// List returns all customers
func (s *CustomerStore) List(ctx context.Context) ([]*models.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, active, created_at FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers := []*models.Customer{}
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, &c)
	}
	return customers, rows.Err()
}
