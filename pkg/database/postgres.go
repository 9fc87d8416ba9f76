package database

import (
	"context"
	"database/sql"
	"fmt"

	"quizbattle/config"

	_ "github.com/lib/pq"
)

type PostgresClient struct {
	db     *sql.DB
	config *config.DBConfig
}

func NewPostgresClient(cfg *config.DBConfig) (*PostgresClient, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{
		db:     db,
		config: cfg,
	}, nil
}

func (c *PostgresClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *PostgresClient) GetDB() *sql.DB {
	return c.db
}

func (c *PostgresClient) InitSchema(ctx context.Context) error {
	createQuestionsTable := `
		CREATE TABLE IF NOT EXISTS questions (
			id VARCHAR(64) PRIMARY KEY,
			question_text TEXT NOT NULL,
			options_json JSONB NOT NULL DEFAULT '[]',
			correct_choice VARCHAR(64) NOT NULL,
			time_limit INTEGER NOT NULL DEFAULT 20
		);
	`

	if _, err := c.db.ExecContext(ctx, createQuestionsTable); err != nil {
		return fmt.Errorf("failed to create questions table: %w", err)
	}

	return nil
}
