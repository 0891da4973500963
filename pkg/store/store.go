package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a scoped lookup matches nothing
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateLead is returned when an insert hits one of the lead
// uniqueness constraints. The constraint is the authoritative duplicate
// guard; the pre-insert duplicate query is only a fast path, so callers
// treat this as a duplicate outcome, never as a failure.
var ErrDuplicateLead = errors.New("store: duplicate lead")

// Store bundles the repositories over one database handle
type Store struct {
	Leads     *LeadStore
	Campaigns *CampaignStore
	Customers *CustomerStore
}

// New creates a store over an open database handle
func New(db *sql.DB) *Store {
	return &Store{
		Leads:     &LeadStore{db: db},
		Campaigns: &CampaignStore{db: db},
		Customers: &CustomerStore{db: db},
	}
}

// isUniqueViolation reports whether err is a uniqueness-constraint error
// from either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// marshalJSON renders a value for a JSON column. Empty maps are stored as
// NULL rather than '{}' to keep the column meaningful.
func marshalJSON(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil, nil
		}
	case map[string]int:
		if len(t) == 0 {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column: %w", err)
	}
	return string(b), nil
}

// unmarshalJSON decodes a JSON column into dst, tolerating NULL
func unmarshalJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
