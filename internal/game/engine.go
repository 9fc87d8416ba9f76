package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"quizbattle/internal/constants"
	"quizbattle/internal/models"
	"quizbattle/internal/question"
)

var (
	ErrSessionNotFound       = errors.New("game: session not found")
	ErrSessionExists         = errors.New("game: session already exists")
	ErrInsufficientQuestions = errors.New("game: not enough questions available")
	ErrUnknownPlayer         = errors.New("game: unknown player")
	ErrStaleQuestion         = errors.New("game: question is not active")
	ErrDuplicateAnswer       = errors.New("game: already answered this question")
	ErrNoActiveQuestion      = errors.New("game: no active question")
)

// PlayerGameState tracks one player's progress through a session. The engine
// is the only writer of its score fields.
type PlayerGameState struct {
	PlayerID     string
	Name         string
	Score        int
	CorrectCount int
	WrongCount   int
	TotalTime    float64
	Answers      map[string]*models.Answer

	joinOrder int
}

// Session is the active game state for one room's current playthrough.
type Session struct {
	RoomID           string
	Status           string
	Questions        []models.Question
	CurrentIndex     int
	QuestionDeadline time.Time
	QuestionOpenedAt time.Time
	Players          map[string]*PlayerGameState
}

// ActiveQuestion returns the currently open question, if any.
func (s *Session) ActiveQuestion() (*models.Question, bool) {
	if s.Status != constants.SessionStatusQuestionActive {
		return nil, false
	}
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return nil, false
	}
	return &s.Questions[s.CurrentIndex], true
}

// DeadlineExpired reports whether the active question's deadline has passed.
func (s *Session) DeadlineExpired(now time.Time) bool {
	if s.Status != constants.SessionStatusQuestionActive {
		return false
	}
	return !s.QuestionDeadline.IsZero() && !now.Before(s.QuestionDeadline)
}

// SubmitResult is returned to the player that answered.
type SubmitResult struct {
	IsCorrect     bool
	ScoreAwarded  int
	TotalScore    int
	CorrectChoice string
}

// Engine owns every GameSession. The hub goroutine drives all mutation;
// every mutating method takes the write lock and every reading method the
// read lock, so admin handlers can observe leaderboards concurrently.
// Session pointers handed out by Session are for the hub goroutine only.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	source           question.Source
	scoring          ScoringConfig
	defaultTimeLimit int
}

func NewEngine(source question.Source, scoring ScoringConfig, defaultTimeLimit int) *Engine {
	return &Engine{
		sessions:         make(map[string]*Session),
		source:           source,
		scoring:          scoring,
		defaultTimeLimit: defaultTimeLimit,
	}
}

// StartSession draws questionCount questions from the source and initializes
// per-player state with zero scores. Mode "random" shuffles before
// truncating; "sequential" takes questions in source order.
func (e *Engine) StartSession(ctx context.Context, roomID string, players []*models.Player, questionCount int, mode string) (*Session, error) {
	// the source may hit the network; draw questions before taking the lock
	// so concurrent leaderboard reads are never stalled behind a slow load
	available, err := e.source.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("game: loading questions: %w", err)
	}
	if len(available) < questionCount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientQuestions, len(available), questionCount)
	}

	selected := make([]models.Question, len(available))
	copy(selected, available)
	if mode == constants.SelectionModeRandom {
		rand.Shuffle(len(selected), func(i, j int) {
			selected[i], selected[j] = selected[j], selected[i]
		})
	}
	selected = selected[:questionCount]
	for i := range selected {
		if selected[i].TimeLimitSec <= 0 {
			selected[i].TimeLimitSec = e.defaultTimeLimit
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[roomID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, roomID)
	}

	sess := &Session{
		RoomID:       roomID,
		Status:       constants.SessionStatusNotStarted,
		Questions:    selected,
		CurrentIndex: -1,
		Players:      make(map[string]*PlayerGameState, len(players)),
	}
	for i, p := range players {
		sess.Players[p.ID] = &PlayerGameState{
			PlayerID:  p.ID,
			Name:      p.Name,
			Answers:   make(map[string]*models.Answer),
			joinOrder: i,
		}
	}
	e.sessions[roomID] = sess
	return sess, nil
}

// AdvanceQuestion exposes the next unseen question and opens its deadline
// window. done is true when the sequence is exhausted.
func (e *Engine) AdvanceQuestion(roomID string, now time.Time) (q *models.Question, number int, done bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[roomID]
	if !ok {
		return nil, 0, false, ErrSessionNotFound
	}

	next := sess.CurrentIndex + 1
	if next >= len(sess.Questions) {
		return nil, 0, true, nil
	}

	sess.CurrentIndex = next
	current := &sess.Questions[next]
	sess.QuestionOpenedAt = now
	sess.QuestionDeadline = now.Add(time.Duration(current.TimeLimitSec) * time.Second)
	sess.Status = constants.SessionStatusQuestionActive
	return current, next + 1, false, nil
}

// SubmitAnswer validates and scores a single answer. A second submission for
// the same question never overwrites the first or re-scores: the original
// result is the error path, not a new computation.
func (e *Engine) SubmitAnswer(roomID, playerID, questionID, choice string, timeSpent float64) (SubmitResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[roomID]
	if !ok {
		return SubmitResult{}, ErrSessionNotFound
	}

	state, ok := sess.Players[playerID]
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}

	current, active := sess.ActiveQuestion()
	if !active || current.ID != questionID {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrStaleQuestion, questionID)
	}
	if _, answered := state.Answers[questionID]; answered {
		return SubmitResult{}, fmt.Errorf("%w: %s", ErrDuplicateAnswer, questionID)
	}

	correct := choice == current.CorrectChoice
	awarded := Score(e.scoring, correct, timeSpent, float64(current.TimeLimitSec))

	state.Answers[questionID] = &models.Answer{
		Choice:       choice,
		Correct:      correct,
		ScoreAwarded: awarded,
		TimeSpent:    timeSpent,
	}
	state.Score += awarded
	state.TotalTime += timeSpent
	if correct {
		state.CorrectCount++
	} else {
		state.WrongCount++
	}

	return SubmitResult{
		IsCorrect:     correct,
		ScoreAwarded:  awarded,
		TotalScore:    state.Score,
		CorrectChoice: current.CorrectChoice,
	}, nil
}

// AllAnswered reports whether every player in roster has a stored answer for
// the question. The roster is the room's current membership: players who
// left mid-game keep their session state but no longer gate advancement.
func (e *Engine) AllAnswered(roomID, questionID string, roster []string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sess, ok := e.sessions[roomID]
	if !ok || len(roster) == 0 {
		return false
	}
	for _, playerID := range roster {
		state, ok := sess.Players[playerID]
		if !ok {
			continue
		}
		if _, answered := state.Answers[questionID]; !answered {
			return false
		}
	}
	return true
}

// ResolveQuestion closes the question: every session player without a stored
// answer gets an explicit unanswered record with zero score. No player is
// ever left without a record for a resolved question.
func (e *Engine) ResolveQuestion(roomID, questionID string) (*models.Question, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[roomID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	current, active := sess.ActiveQuestion()
	if !active || current.ID != questionID {
		return nil, fmt.Errorf("%w: %s", ErrStaleQuestion, questionID)
	}

	for _, state := range sess.Players {
		if _, answered := state.Answers[questionID]; answered {
			continue
		}
		state.Answers[questionID] = &models.Answer{
			Correct:      false,
			ScoreAwarded: 0,
			TimeSpent:    float64(current.TimeLimitSec),
			Unanswered:   true,
		}
		state.WrongCount++
		state.TotalTime += float64(current.TimeLimitSec)
	}

	sess.Status = constants.SessionStatusQuestionClosed
	sess.QuestionDeadline = time.Time{}
	return current, nil
}

// Leaderboard orders players by score descending, ties broken by ascending
// cumulative answer time, then by join order so the result is a total order
// stable under recomputation.
func (e *Engine) Leaderboard(roomID string) []models.LeaderboardEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sess, ok := e.sessions[roomID]
	if !ok {
		return nil
	}
	return leaderboardOf(sess)
}

func leaderboardOf(sess *Session) []models.LeaderboardEntry {
	states := make([]*PlayerGameState, 0, len(sess.Players))
	for _, s := range sess.Players {
		states = append(states, s)
	}
	sort.SliceStable(states, func(i, j int) bool {
		if states[i].Score != states[j].Score {
			return states[i].Score > states[j].Score
		}
		if states[i].TotalTime != states[j].TotalTime {
			return states[i].TotalTime < states[j].TotalTime
		}
		return states[i].joinOrder < states[j].joinOrder
	})

	entries := make([]models.LeaderboardEntry, len(states))
	for i, s := range states {
		entries[i] = models.LeaderboardEntry{
			Rank:         i + 1,
			PlayerID:     s.PlayerID,
			Name:         s.Name,
			Score:        s.Score,
			CorrectCount: s.CorrectCount,
			WrongCount:   s.WrongCount,
			TotalTime:    s.TotalTime,
		}
	}
	return entries
}

// FinishSession marks the session finished, returns the final ordering and
// discards the session object.
func (e *Engine) FinishSession(roomID string) ([]models.LeaderboardEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[roomID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.Status = constants.SessionStatusFinished
	entries := leaderboardOf(sess)
	delete(e.sessions, roomID)
	return entries, nil
}

// DiscardSession drops a session without producing results, for rooms torn
// down mid-game by an admin reset.
func (e *Engine) DiscardSession(roomID string) {
	e.mu.Lock()
	delete(e.sessions, roomID)
	e.mu.Unlock()
}

func (e *Engine) Session(roomID string) (*Session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sess, ok := e.sessions[roomID]
	return sess, ok
}

// PlayerState returns one player's session state, for reconnect snapshots.
// Like Session, the returned pointer is for the hub goroutine only.
func (e *Engine) PlayerState(roomID, playerID string) (*PlayerGameState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sess, ok := e.sessions[roomID]
	if !ok {
		return nil, false
	}
	state, ok := sess.Players[playerID]
	return state, ok
}
