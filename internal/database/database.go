// Package database manages the PostgreSQL connection pool and applies the
// embedded schema at startup.
package database

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lihtc-backend/internal/config"
)

//go:embed schema.sql
var schema string

// Service wraps the pgx pool behind a small interface so handlers and
// engines can be constructed against it.
type Service interface {
	GetPool() *pgxpool.Pool
	Health() map[string]string
	Close()
}

type service struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL, applies the schema, and returns the service.
// Fatal on failure — the process is useless without a database.
func New(cfg *config.DBConfig) Service {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		log.Fatalf("Invalid database config: %v", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	log.Printf("Connected to database %s", cfg.Name)
	return &service{pool: pool}
}

// GetPool returns the underlying pgx pool.
func (s *service) GetPool() *pgxpool.Pool {
	return s.pool
}

// Health reports pool statistics and connectivity for the health endpoint.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := map[string]string{"status": "up"}
	if err := s.pool.Ping(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
		return status
	}

	stats := s.pool.Stat()
	status["totalConns"] = fmt.Sprintf("%d", stats.TotalConns())
	status["idleConns"] = fmt.Sprintf("%d", stats.IdleConns())
	return status
}

// Close shuts down the pool.
func (s *service) Close() {
	s.pool.Close()
}
