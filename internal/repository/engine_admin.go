package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EngineAdmin executes engine-level DDL for tenant provisioning. These
// statements cannot run inside a transaction (CREATE/DROP DATABASE refuse to),
// so the implementation uses a dedicated administrative pool in autocommit
// mode, never the control-plane pool.
type EngineAdmin interface {
	CreateRole(ctx context.Context, name, password string) error
	CreateDatabase(ctx context.Context, name, owner string) error
	DropDatabase(ctx context.Context, name string) error
	DropRole(ctx context.Context, name string) error
}

type pgEngineAdmin struct {
	pool *pgxpool.Pool
}

// NewEngineAdmin creates an EngineAdmin over the administrative pool.
func NewEngineAdmin(pool *pgxpool.Pool) EngineAdmin {
	return &pgEngineAdmin{pool: pool}
}

func (a *pgEngineAdmin) CreateRole(ctx context.Context, name, password string) error {
	// DDL does not take bind parameters; the identifier is quoted via pgx and
	// the password literal is escaped by doubling single quotes.
	stmt := fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s'",
		pgx.Identifier{name}.Sanitize(), strings.ReplaceAll(password, "'", "''"))
	if _, err := a.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create role %s: %w", name, err)
	}
	return nil
}

func (a *pgEngineAdmin) CreateDatabase(ctx context.Context, name, owner string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s OWNER %s",
		pgx.Identifier{name}.Sanitize(), pgx.Identifier{owner}.Sanitize())
	if _, err := a.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create database %s: %w", name, err)
	}
	return nil
}

func (a *pgEngineAdmin) DropDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("DROP DATABASE IF EXISTS %s", pgx.Identifier{name}.Sanitize())
	if _, err := a.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

func (a *pgEngineAdmin) DropRole(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("DROP ROLE IF EXISTS %s", pgx.Identifier{name}.Sanitize())
	if _, err := a.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("drop role %s: %w", name, err)
	}
	return nil
}
