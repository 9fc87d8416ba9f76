package question

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"quizbattle/internal/models"
)

// PostgresSource reads the question bank from the questions table.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) LoadAll(ctx context.Context) ([]models.Question, error) {
	query := `
		SELECT id, question_text, options_json, correct_choice, time_limit
		FROM questions
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("question: querying questions: %w", err)
	}
	defer rows.Close()

	var questions []models.Question
	for rows.Next() {
		var (
			q           models.Question
			optionsJSON []byte
		)
		if err := rows.Scan(&q.ID, &q.Text, &optionsJSON, &q.CorrectChoice, &q.TimeLimitSec); err != nil {
			return nil, fmt.Errorf("question: scanning question row: %w", err)
		}
		if err := json.Unmarshal(optionsJSON, &q.Choices); err != nil {
			return nil, fmt.Errorf("question: parsing options for %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return questions, nil
}
