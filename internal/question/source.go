// Package question provides read-only access to the question bank. The game
// engine consumes questions through the Source interface and never writes
// question content.
package question

import (
	"context"

	"quizbattle/internal/models"
)

type Source interface {
	LoadAll(ctx context.Context) ([]models.Question, error)
}
