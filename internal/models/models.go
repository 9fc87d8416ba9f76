package models

import "time"

// Player is the stable identity of one physical player. The connection id
// rotates across reconnects; the player id never changes while the player's
// room exists.
type Player struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ConnectionID string    `json:"-"`
	Connected    bool      `json:"connected"`
	Ready        bool      `json:"ready"`
	JoinedAt     time.Time `json:"joined_at"`
	LastSeen     time.Time `json:"last_seen"`
}

type Room struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Players    []*Player `json:"players"`
	MaxPlayers int       `json:"max_players"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *Room) IsFull() bool {
	return len(r.Players) >= r.MaxPlayers
}

func (r *Room) IsEmpty() bool {
	return len(r.Players) == 0
}

func (r *Room) PlayerCount() int {
	return len(r.Players)
}

func (r *Room) FindPlayer(playerID string) *Player {
	for _, p := range r.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

type Choice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is externally supplied content. The engine reads it, never
// writes it.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Choices       []Choice `json:"choices"`
	CorrectChoice string   `json:"correct_choice"`
	TimeLimitSec  int      `json:"time_limit_sec"`
}

// SanitizedQuestion is the outward copy of a Question with the answer key
// withheld.
type SanitizedQuestion struct {
	ID           string   `json:"id"`
	Text         string   `json:"text"`
	Choices      []Choice `json:"choices"`
	TimeLimitSec int      `json:"time_limit_sec"`
}

func (q *Question) Sanitized() SanitizedQuestion {
	return SanitizedQuestion{
		ID:           q.ID,
		Text:         q.Text,
		Choices:      q.Choices,
		TimeLimitSec: q.TimeLimitSec,
	}
}

type Answer struct {
	Choice       string  `json:"choice"`
	Correct      bool    `json:"correct"`
	ScoreAwarded int     `json:"score_awarded"`
	TimeSpent    float64 `json:"time_spent"`
	Unanswered   bool    `json:"unanswered,omitempty"`
}

type LeaderboardEntry struct {
	Rank         int     `json:"rank"`
	PlayerID     string  `json:"player_id"`
	Name         string  `json:"name"`
	Score        int     `json:"score"`
	CorrectCount int     `json:"correct_answers"`
	WrongCount   int     `json:"wrong_answers"`
	TotalTime    float64 `json:"total_time"`
}

// Snapshot is the best-effort persisted mirror of room state, written after
// every mutating room operation and loaded once at process start.
type Snapshot struct {
	Rooms           []*Room           `json:"rooms"`
	PlayerRoomIndex map[string]string `json:"player_room_index"`
	NextRoomID      int               `json:"next_room_id"`
}
