package results

import (
	"context"
	"encoding/json"
	"time"

	"quizbattle/internal/models"
	"quizbattle/pkg/messaging"
)

// Publisher pushes final game standings onto the results queue for
// downstream consumers (stats, notifications).
type Publisher struct {
	client *messaging.RabbitMQClient
	queue  string
}

func NewPublisher(client *messaging.RabbitMQClient, queue string) *Publisher {
	return &Publisher{client: client, queue: queue}
}

// gameResult is the queue payload schema.
type gameResult struct {
	RoomID     string                    `json:"room_id"`
	FinishedAt time.Time                 `json:"finished_at"`
	Scores     []models.LeaderboardEntry `json:"scores"`
}

func (p *Publisher) PublishResults(ctx context.Context, roomID string, entries []models.LeaderboardEntry) error {
	body, err := json.Marshal(gameResult{
		RoomID:     roomID,
		FinishedAt: time.Now().UTC(),
		Scores:     entries,
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.queue, body)
}
