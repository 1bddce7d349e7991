// Package routes maps POST paths onto contract write methods.
package routes

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnyContract in the contract column matches every contract.
const AnyContract = "*"

type Table interface {
	Lookup(ctx context.Context, contractID, path string) (method string, ok bool, err error)
}

// StaticTable applies to every contract.
type StaticTable map[string]string

func (t StaticTable) Lookup(_ context.Context, _ string, path string) (string, bool, error) {
	m, ok := t[normalize(path)]
	return m, ok, nil
}

// PGTable reads the web4_post_routes table. A row for the exact contract wins
// over a wildcard row.
type PGTable struct {
	DB *pgxpool.Pool
}

func NewPGTable(db *pgxpool.Pool) *PGTable {
	return &PGTable{DB: db}
}

func (t *PGTable) Lookup(ctx context.Context, contractID, path string) (string, bool, error) {
	var method string
	err := t.DB.QueryRow(ctx, `
SELECT method_name
FROM web4_post_routes
WHERE path=$2 AND (contract_id=$1 OR contract_id=$3)
ORDER BY (contract_id=$3) ASC
LIMIT 1
`, contractID, normalize(path), AnyContract).Scan(&method)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return method, true, nil
}

type Route struct {
	ContractID string `json:"contract_id"`
	Path       string `json:"path"`
	MethodName string `json:"method_name"`
}

// Put inserts or replaces the route for (contractID, path).
func (t *PGTable) Put(ctx context.Context, r Route) error {
	if strings.TrimSpace(r.ContractID) == "" || strings.TrimSpace(r.MethodName) == "" {
		return errors.New("contract_id and method_name are required")
	}
	_, err := t.DB.Exec(ctx, `
INSERT INTO web4_post_routes(contract_id, path, method_name)
VALUES($1,$2,$3)
ON CONFLICT (contract_id, path) DO UPDATE SET method_name=EXCLUDED.method_name
`, r.ContractID, normalize(r.Path), r.MethodName)
	return err
}

// List returns the routes for contractID, including wildcard rows.
func (t *PGTable) List(ctx context.Context, contractID string) ([]Route, error) {
	rows, err := t.DB.Query(ctx, `
SELECT contract_id, path, method_name
FROM web4_post_routes
WHERE contract_id=$1 OR contract_id=$2
ORDER BY path, contract_id
`, contractID, AnyContract)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Route
	for rows.Next() {
		var r Route
		if err := rows.Scan(&r.ContractID, &r.Path, &r.MethodName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Chain consults each table in order and returns the first match.
type Chain []Table

func (c Chain) Lookup(ctx context.Context, contractID, path string) (string, bool, error) {
	for _, t := range c {
		if t == nil {
			continue
		}
		m, ok, err := t.Lookup(ctx, contractID, path)
		if err != nil || ok {
			return m, ok, err
		}
	}
	return "", false, nil
}

func normalize(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
