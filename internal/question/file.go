package question

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"quizbattle/internal/models"
)

// FileSource loads the question bank from a JSON file grouped by category,
// flattening all categories into one pool at load time.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type questionFile struct {
	Categories []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Questions []struct {
			ID            string          `json:"id"`
			Question      string          `json:"question"`
			Choices       []models.Choice `json:"choices"`
			CorrectAnswer string          `json:"correct_answer"`
			TimeLimit     int             `json:"time_limit"`
		} `json:"questions"`
	} `json:"categories"`
}

func (s *FileSource) LoadAll(_ context.Context) ([]models.Question, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("question: reading %s: %w", s.path, err)
	}

	var file questionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("question: parsing %s: %w", s.path, err)
	}

	var questions []models.Question
	for _, category := range file.Categories {
		for _, q := range category.Questions {
			questions = append(questions, models.Question{
				ID:            q.ID,
				Text:          q.Question,
				Choices:       q.Choices,
				CorrectChoice: q.CorrectAnswer,
				TimeLimitSec:  q.TimeLimit,
			})
		}
	}
	return questions, nil
}
