package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"quizbattle/internal/models"
)

// Client -> Server message types.
const (
	MessageTypeJoinRoom     = "join_room"
	MessageTypeRejoinRoom   = "rejoin_room"
	MessageTypeCreateRoom   = "create_room"
	MessageTypeStartGame    = "start_game"
	MessageTypeSubmitAnswer = "submit_answer"
	MessageTypeTimeUp       = "time_up"
	MessageTypeLeaveRoom    = "leave_room"
	MessageTypePing         = "ping"
)

// Server -> Client message types.
const (
	MessageTypeWelcome            = "welcome"
	MessageTypeRoomJoined         = "room_joined"
	MessageTypePlayerJoined       = "player_joined"
	MessageTypePlayerLeft         = "player_left"
	MessageTypePlayerRejoined     = "player_rejoined"
	MessageTypePlayerDisconnected = "player_disconnected"
	MessageTypeGameStarting       = "game_starting"
	MessageTypeNewQuestion        = "new_question"
	MessageTypeAnswerResult       = "answer_result"
	MessageTypeScoresUpdate       = "scores_update"
	MessageTypeGameFinished       = "game_finished"
	MessageTypeError              = "error"
	MessageTypePong               = "pong"
)

var ErrInvalidMessage = errors.New("websocket: invalid message")

// Inbound is the closed set of client message kinds. Raw JSON is decoded
// into exactly one of these at the connection boundary; handlers switch over
// the set exhaustively instead of comparing type strings.
type Inbound interface {
	isInbound()
}

type JoinRoomMessage struct {
	PlayerName string `json:"player_name"`
}

type RejoinRoomMessage struct {
	PlayerID    string `json:"player_id"`
	RoomID      string `json:"room_id"`
	PlayerName  string `json:"player_name"`
	ResumeToken string `json:"resume_token,omitempty"`
}

type CreateRoomMessage struct {
	PlayerName string `json:"player_name"`
}

type StartGameMessage struct{}

type SubmitAnswerMessage struct {
	QuestionID string `json:"question_id"`
	AnswerID   string `json:"answer_id"`
}

type TimeUpMessage struct {
	QuestionID string `json:"question_id"`
}

type LeaveRoomMessage struct{}

type PingMessage struct{}

func (JoinRoomMessage) isInbound()     {}
func (RejoinRoomMessage) isInbound()   {}
func (CreateRoomMessage) isInbound()   {}
func (StartGameMessage) isInbound()    {}
func (SubmitAnswerMessage) isInbound() {}
func (TimeUpMessage) isInbound()       {}
func (LeaveRoomMessage) isInbound()    {}
func (PingMessage) isInbound()         {}

// DecodeInbound parses one wire message into its typed variant.
func DecodeInbound(data []byte) (Inbound, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	var (
		msg Inbound
		err error
	)
	switch head.Type {
	case MessageTypeJoinRoom:
		var m JoinRoomMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case MessageTypeRejoinRoom:
		var m RejoinRoomMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case MessageTypeCreateRoom:
		var m CreateRoomMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case MessageTypeStartGame:
		msg = StartGameMessage{}
	case MessageTypeSubmitAnswer:
		var m SubmitAnswerMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case MessageTypeTimeUp:
		var m TimeUpMessage
		err = json.Unmarshal(data, &m)
		msg = m
	case MessageTypeLeaveRoom:
		msg = LeaveRoomMessage{}
	case MessageTypePing:
		msg = PingMessage{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// Envelope carries the fields every outbound message shares. Concrete
// payloads embed it; SendMessage fills it in just before marshaling.
type Envelope struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (e *Envelope) seal(msgType string, ts int64) {
	e.Type = msgType
	e.Timestamp = ts
}

// Outbound is implemented by every server-to-client payload via an embedded
// Envelope.
type Outbound interface {
	seal(msgType string, ts int64)
}

type WelcomePayload struct {
	Envelope
	ConnectionID string `json:"connection_id"`
	Message      string `json:"message"`
}

type RoomJoinedPayload struct {
	Envelope
	Room        *models.Room   `json:"room"`
	Player      *models.Player `json:"player"`
	ResumeToken string         `json:"resume_token,omitempty"`
}

type PlayerEventPayload struct {
	Envelope
	Room       *models.Room `json:"room"`
	PlayerID   string       `json:"player_id"`
	PlayerName string       `json:"player_name"`
}

type GameStartingPayload struct {
	Envelope
	Countdown      int `json:"countdown"`
	TotalQuestions int `json:"total_questions"`
}

type NewQuestionPayload struct {
	Envelope
	Question       models.SanitizedQuestion `json:"question"`
	TimeLimit      int                      `json:"time_limit"`
	QuestionNumber int                      `json:"question_number"`
	TotalQuestions int                      `json:"total_questions"`
}

type AnswerResultPayload struct {
	Envelope
	QuestionID    string `json:"question_id"`
	Correct       bool   `json:"correct"`
	CorrectAnswer string `json:"correct_answer"`
	Score         int    `json:"score"`
	TotalScore    int    `json:"total_score"`
	Unanswered    bool   `json:"unanswered,omitempty"`
}

type ScoresUpdatePayload struct {
	Envelope
	Scores []models.LeaderboardEntry `json:"scores"`
}

type GameFinishedPayload struct {
	Envelope
	Scores []models.LeaderboardEntry `json:"scores"`
}

type ErrorPayload struct {
	Envelope
	Message string `json:"message"`
}

type PongPayload struct {
	Envelope
}
