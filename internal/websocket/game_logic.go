package websocket

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"quizbattle/internal/constants"
	"quizbattle/internal/game"
	"quizbattle/internal/models"
	"quizbattle/internal/room"
)

const publishTimeout = 5 * time.Second

func (h *Hub) handleJoinRoom(client *Client, playerName, preferredRoomID string) {
	if client.PlayerID != "" {
		h.sendError(client, "already in a room")
		return
	}
	if playerName == "" {
		h.sendError(client, "player_name is required")
		return
	}

	playerID := uuid.NewString()
	rm, player, err := h.rooms.PlacePlayer(playerID, playerName, preferredRoomID)
	if err != nil {
		h.sendError(client, joinErrorMessage(err))
		return
	}

	if err := h.bindings.Bind(playerID, client.ID); err != nil {
		h.rooms.RemovePlayer(playerID)
		h.sendError(client, "connection already bound to a player")
		return
	}
	client.PlayerID = playerID
	h.rooms.SetConnected(playerID, client.ID, true)

	client.SendMessage(MessageTypeRoomJoined, &RoomJoinedPayload{
		Room:        rm,
		Player:      player,
		ResumeToken: h.issueToken(playerID, rm.ID),
	})
	h.broadcastToRoom(rm.ID, MessageTypePlayerJoined, &PlayerEventPayload{
		Room:       rm,
		PlayerID:   playerID,
		PlayerName: playerName,
	}, playerID)

	h.saveSnapshot()
	log.Info().
		Str("player_id", playerID).
		Str("player_name", playerName).
		Str("room_id", rm.ID).
		Msg("player joined room")
}

// handleCreateRoom validates everything up front; a room only comes into
// existence once its creator is guaranteed a seat in it.
func (h *Hub) handleCreateRoom(client *Client, playerName string) {
	if client.PlayerID != "" {
		h.sendError(client, "already in a room")
		return
	}
	if playerName == "" {
		h.sendError(client, "player_name is required")
		return
	}
	rm := h.rooms.CreateRoom()
	h.handleJoinRoom(client, playerName, rm.ID)
}

func (h *Hub) handleStartGame(client *Client) {
	rm, ok := h.roomOfClient(client)
	if !ok {
		return
	}

	if _, err := h.rooms.StartGame(rm.ID); err != nil {
		h.sendError(client, startErrorMessage(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	sess, err := h.engine.StartSession(ctx, rm.ID, rm.Players, h.cfg.QuestionCount, h.cfg.SelectionMode)
	cancel()
	if err != nil {
		h.rooms.AbortGame(rm.ID)
		if errors.Is(err, game.ErrInsufficientQuestions) {
			h.sendError(client, "not enough questions to start a game")
		} else {
			log.Error().Str("room_id", rm.ID).Err(err).Msg("failed to start session")
			h.sendError(client, "failed to start game")
		}
		return
	}

	h.broadcastToRoom(rm.ID, MessageTypeGameStarting, &GameStartingPayload{
		Countdown:      h.cfg.StartCountdown,
		TotalQuestions: len(sess.Questions),
	})
	h.schedule(rm.ID, actionFirstQuestion, time.Duration(h.cfg.StartCountdown)*time.Second)
	h.saveSnapshot()
	log.Info().
		Str("room_id", rm.ID).
		Int("players", rm.PlayerCount()).
		Int("questions", len(sess.Questions)).
		Msg("game starting")
}

// advanceQuestion opens the next question for the room, or finishes the game
// when the sequence is exhausted.
func (h *Hub) advanceQuestion(roomID string, now time.Time) {
	q, number, done, err := h.engine.AdvanceQuestion(roomID, now)
	if err != nil {
		return
	}
	if done {
		h.finishGame(roomID)
		return
	}

	sess, _ := h.engine.Session(roomID)
	h.broadcastToRoom(roomID, MessageTypeNewQuestion, &NewQuestionPayload{
		Question:       q.Sanitized(),
		TimeLimit:      q.TimeLimitSec,
		QuestionNumber: number,
		TotalQuestions: len(sess.Questions),
	})
}

func (h *Hub) handleSubmitAnswer(client *Client, msg SubmitAnswerMessage) {
	rm, ok := h.roomOfClient(client)
	if !ok {
		return
	}
	sess, ok := h.engine.Session(rm.ID)
	if !ok {
		h.sendError(client, "no game in progress")
		return
	}

	timeSpent := time.Since(sess.QuestionOpenedAt).Seconds()
	result, err := h.engine.SubmitAnswer(rm.ID, client.PlayerID, msg.QuestionID, msg.AnswerID, timeSpent)
	if err != nil {
		h.sendError(client, submitErrorMessage(err))
		return
	}

	client.SendMessage(MessageTypeAnswerResult, &AnswerResultPayload{
		QuestionID:    msg.QuestionID,
		Correct:       result.IsCorrect,
		CorrectAnswer: result.CorrectChoice,
		Score:         result.ScoreAwarded,
		TotalScore:    result.TotalScore,
	})
	h.broadcastToRoom(rm.ID, MessageTypeScoresUpdate, &ScoresUpdatePayload{
		Scores: h.engine.Leaderboard(rm.ID),
	})

	if h.engine.AllAnswered(rm.ID, msg.QuestionID, playerIDs(rm)) {
		h.resolveActiveQuestion(rm.ID, msg.QuestionID)
	}
}

// handleTimeUp is a client-side timer hint. The question only closes if the
// server-side deadline agrees.
func (h *Hub) handleTimeUp(client *Client, questionID string) {
	rm, ok := h.roomOfClient(client)
	if !ok {
		return
	}
	sess, ok := h.engine.Session(rm.ID)
	if !ok {
		return
	}
	q, active := sess.ActiveQuestion()
	if !active || q.ID != questionID {
		return
	}
	if sess.DeadlineExpired(time.Now()) {
		h.resolveActiveQuestion(rm.ID, questionID)
	}
}

// resolveActiveQuestion closes the question, tells the players that never
// answered what it cost them, publishes the updated standings and schedules
// the next question.
func (h *Hub) resolveActiveQuestion(roomID, questionID string) {
	q, err := h.engine.ResolveQuestion(roomID, questionID)
	if err != nil {
		return
	}

	sess, _ := h.engine.Session(roomID)
	for playerID, state := range sess.Players {
		answer := state.Answers[questionID]
		if answer == nil || !answer.Unanswered {
			continue
		}
		h.sendToPlayer(playerID, MessageTypeAnswerResult, &AnswerResultPayload{
			QuestionID:    questionID,
			Correct:       false,
			CorrectAnswer: q.CorrectChoice,
			Score:         0,
			TotalScore:    state.Score,
			Unanswered:    true,
		})
	}

	h.broadcastToRoom(roomID, MessageTypeScoresUpdate, &ScoresUpdatePayload{
		Scores: h.engine.Leaderboard(roomID),
	})
	h.schedule(roomID, actionNextQuestion, time.Duration(h.cfg.QuestionPause)*time.Second)
}

// finishGame emits the final standings, recycles the room and hands the
// results to the publisher.
func (h *Hub) finishGame(roomID string) {
	entries, err := h.engine.FinishSession(roomID)
	if err != nil {
		return
	}
	delete(h.pending, roomID)

	h.broadcastToRoom(roomID, MessageTypeGameFinished, &GameFinishedPayload{
		Scores: entries,
	})
	h.rooms.FinishGame(roomID)
	h.saveSnapshot()

	if h.results != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			defer cancel()
			if err := h.results.PublishResults(ctx, roomID, entries); err != nil {
				log.Warn().Str("room_id", roomID).Err(err).Msg("failed to publish game results")
			}
		}()
	}
	log.Info().Str("room_id", roomID).Int("players", len(entries)).Msg("game finished")
}

func (h *Hub) handleLeaveRoom(client *Client) {
	if client.PlayerID == "" {
		h.sendError(client, "not in a room")
		return
	}
	playerID := client.PlayerID

	rm, _, err := h.rooms.RemovePlayer(playerID)
	if err != nil {
		h.sendError(client, "not in a room")
		return
	}
	h.bindings.ReleasePlayer(playerID)
	client.PlayerID = ""

	h.broadcastToRoom(rm.ID, MessageTypePlayerLeft, &PlayerEventPayload{
		Room:     rm,
		PlayerID: playerID,
	})

	if rm.Status == constants.RoomStatusPlaying {
		if rm.IsEmpty() {
			h.engine.DiscardSession(rm.ID)
			delete(h.pending, rm.ID)
			h.rooms.FinishGame(rm.ID)
		} else if sess, ok := h.engine.Session(rm.ID); ok {
			if q, active := sess.ActiveQuestion(); active && h.engine.AllAnswered(rm.ID, q.ID, playerIDs(rm)) {
				h.resolveActiveQuestion(rm.ID, q.ID)
			}
		}
	}
	h.saveSnapshot()
}

// handleRejoinRoom binds a fresh connection to an existing player seat. When
// the seat still has a live connection the newer one wins and the old one is
// closed.
func (h *Hub) handleRejoinRoom(client *Client, msg RejoinRoomMessage) {
	if client.PlayerID != "" {
		h.sendError(client, "already in a room")
		return
	}

	rm, ok := h.rooms.Room(msg.RoomID)
	if !ok {
		h.sendError(client, "cannot rejoin: room no longer exists")
		return
	}
	player := rm.FindPlayer(msg.PlayerID)
	if player == nil {
		h.sendError(client, "cannot rejoin: player not found in room")
		return
	}
	if h.tokens != nil {
		if err := h.tokens.Verify(msg.ResumeToken, msg.PlayerID, msg.RoomID); err != nil {
			h.sendError(client, "cannot rejoin: invalid resume token")
			return
		}
	}

	if oldConnID, bound := h.bindings.ConnFor(msg.PlayerID); bound {
		h.bindings.ReleaseConn(oldConnID)
		if old, ok := h.clients[oldConnID]; ok {
			delete(h.clients, oldConnID)
			old.closeSend()
			old.Close()
		}
	}

	if err := h.bindings.Bind(msg.PlayerID, client.ID); err != nil {
		h.sendError(client, "connection already bound to a player")
		return
	}
	client.PlayerID = msg.PlayerID
	h.rooms.SetConnected(msg.PlayerID, client.ID, true)

	client.SendMessage(MessageTypeRoomJoined, &RoomJoinedPayload{
		Room:        rm,
		Player:      player,
		ResumeToken: h.issueToken(msg.PlayerID, rm.ID),
	})

	if sess, ok := h.engine.Session(rm.ID); ok {
		if q, active := sess.ActiveQuestion(); active {
			remaining := int(math.Ceil(time.Until(sess.QuestionDeadline).Seconds()))
			if remaining < 0 {
				remaining = 0
			}
			client.SendMessage(MessageTypeNewQuestion, &NewQuestionPayload{
				Question:       q.Sanitized(),
				TimeLimit:      remaining,
				QuestionNumber: sess.CurrentIndex + 1,
				TotalQuestions: len(sess.Questions),
			})
		}
		client.SendMessage(MessageTypeScoresUpdate, &ScoresUpdatePayload{
			Scores: h.engine.Leaderboard(rm.ID),
		})
	}

	h.broadcastToRoom(rm.ID, MessageTypePlayerRejoined, &PlayerEventPayload{
		Room:       rm,
		PlayerID:   msg.PlayerID,
		PlayerName: player.Name,
	}, msg.PlayerID)

	h.saveSnapshot()
	log.Info().
		Str("player_id", msg.PlayerID).
		Str("room_id", rm.ID).
		Str("connection_id", client.ID).
		Msg("player rejoined")
}

// handlePlayerDisconnect keeps the seat when a game is running so the player
// can rejoin; in a waiting room the seat is simply freed.
func (h *Hub) handlePlayerDisconnect(playerID string) {
	rm, ok := h.rooms.RoomOf(playerID)
	if !ok {
		return
	}

	if rm.Status == constants.RoomStatusPlaying {
		h.rooms.SetConnected(playerID, "", false)
		h.broadcastToRoom(rm.ID, MessageTypePlayerDisconnected, &PlayerEventPayload{
			Room:     rm,
			PlayerID: playerID,
		})
	} else {
		h.rooms.RemovePlayer(playerID)
		h.broadcastToRoom(rm.ID, MessageTypePlayerLeft, &PlayerEventPayload{
			Room:     rm,
			PlayerID: playerID,
		})
	}
	h.saveSnapshot()
}

func (h *Hub) roomOfClient(client *Client) (*models.Room, bool) {
	if client.PlayerID == "" {
		h.sendError(client, "not in a room")
		return nil, false
	}
	rm, ok := h.rooms.RoomOf(client.PlayerID)
	if !ok {
		h.sendError(client, "not in a room")
		return nil, false
	}
	return rm, true
}

func (h *Hub) sendToPlayer(playerID, msgType string, payload Outbound) {
	connID, ok := h.bindings.ConnFor(playerID)
	if !ok {
		return
	}
	client, ok := h.clients[connID]
	if !ok {
		return
	}
	client.SendMessage(msgType, payload)
}

func (h *Hub) issueToken(playerID, roomID string) string {
	if h.tokens == nil {
		return ""
	}
	token, err := h.tokens.Issue(playerID, roomID)
	if err != nil {
		log.Warn().Str("player_id", playerID).Err(err).Msg("failed to issue resume token")
		return ""
	}
	return token
}

func playerIDs(rm *models.Room) []string {
	ids := make([]string, 0, len(rm.Players))
	for _, p := range rm.Players {
		ids = append(ids, p.ID)
	}
	return ids
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrRoomFull):
		return "room is full"
	case errors.Is(err, room.ErrRoomNotAccepting):
		return "room is not accepting players"
	case errors.Is(err, room.ErrPlayerAlreadyInRoom):
		return "already in a room"
	default:
		return "failed to join room"
	}
}

func startErrorMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, room.ErrRoomNotAccepting):
		return "game already in progress"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return "not enough players to start"
	default:
		return "failed to start game"
	}
}

func submitErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrDuplicateAnswer):
		return "answer already submitted for this question"
	case errors.Is(err, game.ErrStaleQuestion):
		return "question is no longer active"
	case errors.Is(err, game.ErrUnknownPlayer):
		return "not part of this game"
	case errors.Is(err, game.ErrSessionNotFound):
		return "no game in progress"
	default:
		return "failed to submit answer"
	}
}
