package question

import (
	"context"

	"quizbattle/internal/models"
)

// StaticSource serves a fixed in-memory question set. It is the fallback
// when no database or file is reachable at startup, and doubles as the
// source for tests.
type StaticSource struct {
	Questions []models.Question
}

func NewStaticSource(questions []models.Question) *StaticSource {
	return &StaticSource{Questions: questions}
}

func (s *StaticSource) LoadAll(_ context.Context) ([]models.Question, error) {
	out := make([]models.Question, len(s.Questions))
	copy(out, s.Questions)
	return out, nil
}

func abcChoices(a, b, c string) []models.Choice {
	return []models.Choice{{ID: "a", Text: a}, {ID: "b", Text: b}, {ID: "c", Text: c}}
}

// FallbackQuestions is a tiny built-in bank so the server can still host a
// game when the configured question source is unavailable.
func FallbackQuestions() []models.Question {
	return []models.Question{
		{ID: "fb_1", Text: "What is 2 + 2?", Choices: abcChoices("3", "4", "5"), CorrectChoice: "b", TimeLimitSec: 10},
		{ID: "fb_2", Text: "Which planet is known as the Red Planet?", Choices: abcChoices("Venus", "Jupiter", "Mars"), CorrectChoice: "c", TimeLimitSec: 10},
		{ID: "fb_3", Text: "How many sides does a hexagon have?", Choices: abcChoices("5", "6", "7"), CorrectChoice: "b", TimeLimitSec: 10},
		{ID: "fb_4", Text: "What is the chemical symbol for water?", Choices: abcChoices("H2O", "CO2", "NaCl"), CorrectChoice: "a", TimeLimitSec: 10},
		{ID: "fb_5", Text: "Which ocean is the largest?", Choices: abcChoices("Atlantic", "Indian", "Pacific"), CorrectChoice: "c", TimeLimitSec: 10},
	}
}
