package websocket

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"quizbattle/config"
	"quizbattle/internal/auth"
	"quizbattle/internal/binding"
	"quizbattle/internal/game"
	"quizbattle/internal/models"
	"quizbattle/internal/room"
	"quizbattle/internal/snapshot"
)

const snapshotTimeout = 2 * time.Second

// InboundMessage pairs a decoded-frame payload with the connection it came
// from.
type InboundMessage struct {
	Client *Client
	Data   []byte
}

// ResultsPublisher receives final standings when a game ends. Nil disables
// publishing.
type ResultsPublisher interface {
	PublishResults(ctx context.Context, roomID string, entries []models.LeaderboardEntry) error
}

type actionKind int

const (
	actionFirstQuestion actionKind = iota
	actionNextQuestion
)

// pendingAction is a room-scoped timer: the countdown before the first
// question or the pause between questions.
type pendingAction struct {
	kind actionKind
	due  time.Time
}

// Hub is the single goroutine that owns all game state transitions. Clients
// funnel registration, disconnects and decoded messages through its channels;
// the tick drives every time-based transition. Nothing outside Run mutates
// rooms or sessions.
type Hub struct {
	Register      chan *Client
	Unregister    chan *Client
	HandleMessage chan *InboundMessage

	clients  map[string]*Client
	bindings *binding.Table
	pending  map[string]pendingAction

	rooms     *room.Registry
	engine    *game.Engine
	snapshots snapshot.Store
	results   ResultsPublisher
	tokens    *auth.TokenIssuer
	cfg       config.GameConfig

	done chan struct{}
}

func NewHub(rooms *room.Registry, engine *game.Engine, snapshots snapshot.Store, results ResultsPublisher, tokens *auth.TokenIssuer, cfg config.GameConfig) *Hub {
	return &Hub{
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		HandleMessage: make(chan *InboundMessage, 256),
		clients:       make(map[string]*Client),
		bindings:      binding.NewTable(),
		pending:       make(map[string]pendingAction),
		rooms:         rooms,
		engine:        engine,
		snapshots:     snapshots,
		results:       results,
		tokens:        tokens,
		cfg:           cfg,
		done:          make(chan struct{}),
	}
}

// Run processes events until Stop is called. Each tick drains queued messages
// first so that an answer racing a deadline is scored before the deadline
// closes the question.
func (h *Hub) Run() {
	ticker := time.NewTicker(time.Duration(h.cfg.TickMillis) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case msg := <-h.HandleMessage:
			h.dispatch(msg.Client, msg.Data)
		case now := <-ticker.C:
			h.drainMessages()
			h.firePending(now)
			h.checkDeadlines(now)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) drainMessages() {
	for {
		select {
		case msg := <-h.HandleMessage:
			h.dispatch(msg.Client, msg.Data)
		default:
			return
		}
	}
}

func (h *Hub) register(client *Client) {
	h.clients[client.ID] = client
	log.Info().Str("connection_id", client.ID).Msg("client connected")
	client.SendMessage(MessageTypeWelcome, &WelcomePayload{
		ConnectionID: client.ID,
		Message:      "connected to quizbattle",
	})
}

// unregister tears down the transport side of a connection. The player, if
// any, stays in its room marked disconnected so a rejoin can pick the seat
// back up.
func (h *Hub) unregister(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	client.closeSend()

	playerID, bound := h.bindings.ReleaseConn(client.ID)
	if !bound {
		log.Info().Str("connection_id", client.ID).Msg("client disconnected")
		return
	}

	h.handlePlayerDisconnect(playerID)
	log.Info().
		Str("connection_id", client.ID).
		Str("player_id", playerID).
		Msg("player disconnected")
}

func (h *Hub) dispatch(client *Client, data []byte) {
	// a message can sit queued behind the client's own unregister; once the
	// client is gone its messages are dropped, never answered
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	msg, err := DecodeInbound(data)
	if err != nil {
		h.sendError(client, "invalid message")
		return
	}

	switch m := msg.(type) {
	case JoinRoomMessage:
		h.handleJoinRoom(client, m.PlayerName, "")
	case CreateRoomMessage:
		h.handleCreateRoom(client, m.PlayerName)
	case RejoinRoomMessage:
		h.handleRejoinRoom(client, m)
	case StartGameMessage:
		h.handleStartGame(client)
	case SubmitAnswerMessage:
		h.handleSubmitAnswer(client, m)
	case TimeUpMessage:
		h.handleTimeUp(client, m.QuestionID)
	case LeaveRoomMessage:
		h.handleLeaveRoom(client)
	case PingMessage:
		client.SendMessage(MessageTypePong, &PongPayload{})
	}
}

// broadcastToRoom sends one payload to every connected player in membership
// order. Disconnected players are skipped, not queued. except lists player
// ids to leave out, typically the player that triggered the event.
func (h *Hub) broadcastToRoom(roomID, msgType string, payload Outbound, except ...string) {
	rm, ok := h.rooms.Room(roomID)
	if !ok {
		return
	}
	for _, p := range rm.Players {
		if !p.Connected || contains(except, p.ID) {
			continue
		}
		connID, ok := h.bindings.ConnFor(p.ID)
		if !ok {
			continue
		}
		client, ok := h.clients[connID]
		if !ok {
			continue
		}
		client.SendMessage(msgType, payload)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (h *Hub) sendError(client *Client, message string) {
	client.SendMessage(MessageTypeError, &ErrorPayload{Message: message})
}

// saveSnapshot persists room state after a mutation. Failures are logged and
// swallowed: persistence is best effort and never blocks gameplay.
func (h *Hub) saveSnapshot() {
	snap := h.rooms.Snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	if err := h.snapshots.Save(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("failed to save room snapshot")
	}
}

func (h *Hub) schedule(roomID string, kind actionKind, delay time.Duration) {
	h.pending[roomID] = pendingAction{kind: kind, due: time.Now().Add(delay)}
}

func (h *Hub) firePending(now time.Time) {
	for roomID, action := range h.pending {
		if now.Before(action.due) {
			continue
		}
		delete(h.pending, roomID)
		switch action.kind {
		case actionFirstQuestion, actionNextQuestion:
			h.advanceQuestion(roomID, now)
		}
	}
}

// checkDeadlines closes every question whose timer ran out. The server clock
// is authoritative; client time_up messages only ask for this same check.
func (h *Hub) checkDeadlines(now time.Time) {
	for _, rm := range h.rooms.Rooms() {
		sess, ok := h.engine.Session(rm.ID)
		if !ok {
			continue
		}
		if !sess.DeadlineExpired(now) {
			continue
		}
		if q, active := sess.ActiveQuestion(); active {
			h.resolveActiveQuestion(rm.ID, q.ID)
		}
	}
}
