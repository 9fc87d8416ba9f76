package websocket

import (
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"quizbattle/config"
	"quizbattle/internal/constants"
	"quizbattle/internal/game"
	"quizbattle/internal/models"
	"quizbattle/internal/protocol"
	"quizbattle/internal/question"
	"quizbattle/internal/room"
	"quizbattle/internal/snapshot"
)

func testGameConfig(questionCount int) config.GameConfig {
	return config.GameConfig{
		MaxPlayers:       4,
		MinPlayers:       2,
		QuestionCount:    questionCount,
		SelectionMode:    constants.SelectionModeSequential,
		BaseScore:        100,
		MaxTimeBonus:     50,
		PerfectThreshold: 0.3,
		DefaultTimeLimit: 30,
		StartCountdown:   0,
		QuestionPause:    0,
		TickMillis:       10,
	}
}

func quizQuestions(n int) []models.Question {
	questions := make([]models.Question, n)
	for i := range questions {
		questions[i] = models.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Text:          fmt.Sprintf("question %d", i+1),
			Choices:       []models.Choice{{ID: "x", Text: "Right"}, {ID: "y", Text: "Wrong"}},
			CorrectChoice: "x",
			TimeLimitSec:  30,
		}
	}
	return questions
}

// startTestServer brings up a hub and listener on a random port and returns
// the websocket URL.
func startTestServer(t *testing.T, cfg config.GameConfig, questions []models.Question) string {
	t.Helper()

	rooms := room.NewRegistry(cfg.MaxPlayers, cfg.MinPlayers)
	engine := game.NewEngine(question.NewStaticSource(questions), game.ScoringConfig{
		BaseScore:        cfg.BaseScore,
		MaxTimeBonus:     cfg.MaxTimeBonus,
		PerfectThreshold: cfg.PerfectThreshold,
	}, cfg.DefaultTimeLimit)

	hub := NewHub(rooms, engine, snapshot.NopStore{}, nil, nil, cfg)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := NewServer(hub)
	go server.Listen("127.0.0.1:0")
	t.Cleanup(func() { server.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for server.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start listening")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "ws://" + server.Addr().String() + "/"
}

// dial connects with the reference client implementation, which exercises the
// in-house handshake and frame codec against an independent peer.
func dial(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *gws.Conn, msg map[string]any) {
	t.Helper()
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(gws.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitFor reads messages until one of the wanted type arrives, skipping
// everything else.
func waitFor(t *testing.T, conn *gws.Conn, msgType string) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %q: %v", msgType, err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("waiting for %q: bad json %s", msgType, data)
		}
		if msg["type"] == msgType {
			return msg
		}
	}
}

func joinAs(t *testing.T, conn *gws.Conn, name string) (roomID, playerID string) {
	t.Helper()
	waitFor(t, conn, MessageTypeWelcome)
	send(t, conn, map[string]any{"type": "join_room", "player_name": name})
	joined := waitFor(t, conn, MessageTypeRoomJoined)
	rm := joined["room"].(map[string]any)
	player := joined["player"].(map[string]any)
	return rm["id"].(string), player["id"].(string)
}

func TestFullGamePlaythrough(t *testing.T) {
	url := startTestServer(t, testGameConfig(2), quizQuestions(2))

	alice := dial(t, url)
	roomID, aliceID := joinAs(t, alice, "alice")

	bob := dial(t, url)
	bobRoom, bobID := joinAs(t, bob, "bob")
	if bobRoom != roomID {
		t.Fatalf("bob placed in %s, alice in %s", bobRoom, roomID)
	}
	waitFor(t, alice, MessageTypePlayerJoined)

	send(t, alice, map[string]any{"type": "start_game"})
	starting := waitFor(t, bob, MessageTypeGameStarting)
	if starting["total_questions"] != float64(2) {
		t.Errorf("total_questions = %v", starting["total_questions"])
	}

	for round := 1; round <= 2; round++ {
		qa := waitFor(t, alice, MessageTypeNewQuestion)
		qb := waitFor(t, bob, MessageTypeNewQuestion)

		questionID := qa["question"].(map[string]any)["id"].(string)
		if qb["question"].(map[string]any)["id"].(string) != questionID {
			t.Fatal("players see different questions")
		}
		if qa["question_number"] != float64(round) {
			t.Errorf("question_number = %v, want %d", qa["question_number"], round)
		}
		// the answer key must never reach a client
		if _, leaked := qa["question"].(map[string]any)["correct_choice"]; leaked {
			t.Fatal("correct choice leaked in question payload")
		}

		send(t, alice, map[string]any{"type": "submit_answer", "question_id": questionID, "answer_id": "x"})
		result := waitFor(t, alice, MessageTypeAnswerResult)
		if result["correct"] != true || result["score"] != float64(150) {
			t.Errorf("alice round %d result = %v", round, result)
		}

		bobAnswer := "y"
		if round == 2 {
			bobAnswer = "x"
		}
		send(t, bob, map[string]any{"type": "submit_answer", "question_id": questionID, "answer_id": bobAnswer})
		bobResult := waitFor(t, bob, MessageTypeAnswerResult)
		if round == 1 && bobResult["correct"] != false {
			t.Errorf("bob round 1 result = %v", bobResult)
		}
	}

	finished := waitFor(t, alice, MessageTypeGameFinished)
	scores := finished["scores"].([]any)
	if len(scores) != 2 {
		t.Fatalf("final scores has %d entries", len(scores))
	}
	first := scores[0].(map[string]any)
	second := scores[1].(map[string]any)
	if first["player_id"] != aliceID || first["score"] != float64(300) {
		t.Errorf("first place = %v", first)
	}
	if second["player_id"] != bobID || second["score"] != float64(150) {
		t.Errorf("second place = %v", second)
	}
	if first["rank"] != float64(1) || second["rank"] != float64(2) {
		t.Errorf("ranks = %v, %v", first["rank"], second["rank"])
	}

	waitFor(t, bob, MessageTypeGameFinished)
}

func TestRejoinMidGame(t *testing.T) {
	url := startTestServer(t, testGameConfig(1), quizQuestions(1))

	alice := dial(t, url)
	roomID, _ := joinAs(t, alice, "alice")
	bob := dial(t, url)
	_, bobID := joinAs(t, bob, "bob")
	waitFor(t, alice, MessageTypePlayerJoined)

	send(t, alice, map[string]any{"type": "start_game"})
	qa := waitFor(t, alice, MessageTypeNewQuestion)
	waitFor(t, bob, MessageTypeNewQuestion)
	questionID := qa["question"].(map[string]any)["id"].(string)

	bob.Close()
	waitFor(t, alice, MessageTypePlayerDisconnected)

	bob2 := dial(t, url)
	waitFor(t, bob2, MessageTypeWelcome)
	send(t, bob2, map[string]any{
		"type":      "rejoin_room",
		"player_id": bobID,
		"room_id":   roomID,
	})
	rejoined := waitFor(t, bob2, MessageTypeRoomJoined)
	if rejoined["player"].(map[string]any)["id"] != bobID {
		t.Fatalf("rejoined as wrong player: %v", rejoined["player"])
	}

	// the active question is replayed with the remaining time
	replay := waitFor(t, bob2, MessageTypeNewQuestion)
	if replay["question"].(map[string]any)["id"].(string) != questionID {
		t.Errorf("replayed question = %v", replay["question"])
	}
	if replay["time_limit"].(float64) > 30 {
		t.Errorf("replayed time_limit = %v, want remaining time", replay["time_limit"])
	}
	waitFor(t, alice, MessageTypePlayerRejoined)

	send(t, alice, map[string]any{"type": "submit_answer", "question_id": questionID, "answer_id": "x"})
	send(t, bob2, map[string]any{"type": "submit_answer", "question_id": questionID, "answer_id": "x"})

	finished := waitFor(t, bob2, MessageTypeGameFinished)
	scores := finished["scores"].([]any)
	foundBob := false
	for _, entry := range scores {
		e := entry.(map[string]any)
		if e["player_id"] == bobID {
			foundBob = true
			if e["score"] != float64(150) {
				t.Errorf("bob's score after rejoin = %v", e["score"])
			}
		}
	}
	if !foundBob {
		t.Error("bob missing from final scores")
	}
}

func TestReconnectAfterMissedQuestion(t *testing.T) {
	questions := quizQuestions(2)
	questions[0].TimeLimitSec = 1

	url := startTestServer(t, testGameConfig(2), questions)

	alice := dial(t, url)
	roomID, aliceID := joinAs(t, alice, "alice")
	bob := dial(t, url)
	_, bobID := joinAs(t, bob, "bob")
	waitFor(t, alice, MessageTypePlayerJoined)

	send(t, alice, map[string]any{"type": "start_game"})
	q1 := waitFor(t, alice, MessageTypeNewQuestion)
	q1ID := q1["question"].(map[string]any)["id"].(string)

	// bob drops; alice answers; bob's missing answer holds the question
	// open until the deadline resolves it
	bob.Close()
	waitFor(t, alice, MessageTypePlayerDisconnected)
	send(t, alice, map[string]any{"type": "submit_answer", "question_id": q1ID, "answer_id": "x"})
	waitFor(t, alice, MessageTypeAnswerResult)

	q2 := waitFor(t, alice, MessageTypeNewQuestion)
	q2ID := q2["question"].(map[string]any)["id"].(string)
	if q2ID == q1ID {
		t.Fatal("question did not advance past the deadline")
	}

	bob2 := dial(t, url)
	waitFor(t, bob2, MessageTypeWelcome)
	send(t, bob2, map[string]any{"type": "rejoin_room", "player_id": bobID, "room_id": roomID})
	waitFor(t, bob2, MessageTypeRoomJoined)
	replay := waitFor(t, bob2, MessageTypeNewQuestion)
	if replay["question"].(map[string]any)["id"].(string) != q2ID {
		t.Fatalf("rejoined player sees %v, want the current question", replay["question"])
	}

	send(t, alice, map[string]any{"type": "submit_answer", "question_id": q2ID, "answer_id": "x"})
	send(t, bob2, map[string]any{"type": "submit_answer", "question_id": q2ID, "answer_id": "x"})

	finished := waitFor(t, bob2, MessageTypeGameFinished)
	for _, entry := range finished["scores"].([]any) {
		e := entry.(map[string]any)
		switch e["player_id"] {
		case aliceID:
			if e["score"] != float64(300) {
				t.Errorf("alice score = %v, want 300", e["score"])
			}
		case bobID:
			// missed question resolved as 0, the answered one scored
			if e["score"] != float64(150) {
				t.Errorf("bob score after miss+rejoin = %v, want 150", e["score"])
			}
			if e["wrong_answers"] != float64(1) {
				t.Errorf("bob wrong_answers = %v, want the missed question counted", e["wrong_answers"])
			}
		}
	}
}

func TestDuplicateAnswerRejected(t *testing.T) {
	url := startTestServer(t, testGameConfig(1), quizQuestions(1))

	alice := dial(t, url)
	joinAs(t, alice, "alice")
	bob := dial(t, url)
	joinAs(t, bob, "bob")
	waitFor(t, alice, MessageTypePlayerJoined)

	send(t, alice, map[string]any{"type": "start_game"})
	qa := waitFor(t, alice, MessageTypeNewQuestion)
	questionID := qa["question"].(map[string]any)["id"].(string)

	send(t, alice, map[string]any{"type": "submit_answer", "question_id": questionID, "answer_id": "x"})
	waitFor(t, alice, MessageTypeAnswerResult)

	send(t, alice, map[string]any{"type": "submit_answer", "question_id": questionID, "answer_id": "y"})
	errMsg := waitFor(t, alice, MessageTypeError)
	if errMsg["message"] != "answer already submitted for this question" {
		t.Errorf("error = %v", errMsg["message"])
	}
}

func TestJoinValidation(t *testing.T) {
	url := startTestServer(t, testGameConfig(1), quizQuestions(1))

	conn := dial(t, url)
	waitFor(t, conn, MessageTypeWelcome)

	send(t, conn, map[string]any{"type": "join_room"})
	errMsg := waitFor(t, conn, MessageTypeError)
	if errMsg["message"] != "player_name is required" {
		t.Errorf("error = %v", errMsg["message"])
	}

	if err := conn.WriteMessage(gws.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	errMsg = waitFor(t, conn, MessageTypeError)
	if errMsg["message"] != "invalid message" {
		t.Errorf("error = %v", errMsg["message"])
	}

	send(t, conn, map[string]any{"type": "start_game"})
	errMsg = waitFor(t, conn, MessageTypeError)
	if errMsg["message"] != "not in a room" {
		t.Errorf("error = %v", errMsg["message"])
	}
}

func TestStartGameRequiresTwoPlayers(t *testing.T) {
	url := startTestServer(t, testGameConfig(1), quizQuestions(1))

	alice := dial(t, url)
	joinAs(t, alice, "alice")

	send(t, alice, map[string]any{"type": "start_game"})
	errMsg := waitFor(t, alice, MessageTypeError)
	if errMsg["message"] != "not enough players to start" {
		t.Errorf("error = %v", errMsg["message"])
	}
}

func TestInsufficientQuestionsAbortsStart(t *testing.T) {
	// 5 questions requested, only 1 available
	url := startTestServer(t, testGameConfig(5), quizQuestions(1))

	alice := dial(t, url)
	roomID, _ := joinAs(t, alice, "alice")
	bob := dial(t, url)
	joinAs(t, bob, "bob")
	waitFor(t, alice, MessageTypePlayerJoined)

	send(t, alice, map[string]any{"type": "start_game"})
	errMsg := waitFor(t, alice, MessageTypeError)
	if errMsg["message"] != "not enough questions to start a game" {
		t.Errorf("error = %v", errMsg["message"])
	}

	// the room reverted to waiting and can host a correctly sized game
	carol := dial(t, url)
	carolRoom, _ := joinAs(t, carol, "carol")
	if carolRoom != roomID {
		t.Errorf("carol placed in %s, want the reverted room %s", carolRoom, roomID)
	}
}

func TestPingPong(t *testing.T) {
	url := startTestServer(t, testGameConfig(1), quizQuestions(1))

	conn := dial(t, url)
	waitFor(t, conn, MessageTypeWelcome)

	send(t, conn, map[string]any{"type": "ping"})
	pong := waitFor(t, conn, MessageTypePong)
	if pong["timestamp"] == nil {
		t.Error("pong missing timestamp")
	}
}

func TestQuestionDeadlineResolvesUnanswered(t *testing.T) {
	cfg := testGameConfig(1)
	questions := quizQuestions(1)
	questions[0].TimeLimitSec = 1

	url := startTestServer(t, cfg, questions)

	alice := dial(t, url)
	joinAs(t, alice, "alice")
	bob := dial(t, url)
	joinAs(t, bob, "bob")
	waitFor(t, alice, MessageTypePlayerJoined)

	send(t, alice, map[string]any{"type": "start_game"})
	waitFor(t, alice, MessageTypeNewQuestion)

	// nobody answers; the server deadline closes the question
	result := waitFor(t, alice, MessageTypeAnswerResult)
	if result["unanswered"] != true || result["score"] != float64(0) {
		t.Errorf("deadline result = %v", result)
	}

	finished := waitFor(t, alice, MessageTypeGameFinished)
	for _, entry := range finished["scores"].([]any) {
		e := entry.(map[string]any)
		if e["score"] != float64(0) {
			t.Errorf("unanswered player scored %v", e["score"])
		}
	}
}

// newBareHub builds a hub without starting Run, so tests can call the loop's
// own handlers directly in the order the loop would.
func newBareHub(cfg config.GameConfig, questions []models.Question) *Hub {
	rooms := room.NewRegistry(cfg.MaxPlayers, cfg.MinPlayers)
	engine := game.NewEngine(question.NewStaticSource(questions), game.ScoringConfig{
		BaseScore:        cfg.BaseScore,
		MaxTimeBonus:     cfg.MaxTimeBonus,
		PerfectThreshold: cfg.PerfectThreshold,
	}, cfg.DefaultTimeLimit)
	return NewHub(rooms, engine, snapshot.NopStore{}, nil, nil, cfg)
}

func pipeClient(t *testing.T, hub *Hub, id string) *Client {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewClient(id, server, hub)
}

// drainOutbound decodes every frame currently buffered on the client's send
// channel without blocking.
func drainOutbound(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	dec := protocol.NewDecoder()
	var out []map[string]any
	for {
		select {
		case frame, ok := <-c.Send:
			if !ok {
				return out
			}
			dec.Feed(frame)
			for {
				f, complete, err := dec.Next()
				if err != nil {
					t.Fatalf("decode outbound frame: %v", err)
				}
				if !complete {
					break
				}
				var msg map[string]any
				if err := json.Unmarshal(f.Payload, &msg); err != nil {
					t.Fatalf("outbound frame is not json: %s", f.Payload)
				}
				out = append(out, msg)
			}
		default:
			return out
		}
	}
}

func TestDispatchAfterUnregisterDoesNotPanic(t *testing.T) {
	hub := newBareHub(testGameConfig(1), quizQuestions(1))
	c := pipeClient(t, hub, "conn_1")

	hub.register(c)
	hub.unregister(c)

	// a message can sit queued behind its sender's own unregister; answering
	// it would send on the closed channel
	hub.dispatch(c, []byte(`{"type":"ping"}`))

	// the read side can still race teardown with a late pong
	c.enqueue([]byte("late"))

	// a second close, as when a rejoin takeover precedes the disconnect
	c.closeSend()
}

func TestCreateRoomRequiresPlayerName(t *testing.T) {
	hub := newBareHub(testGameConfig(1), quizQuestions(1))
	c := pipeClient(t, hub, "conn_1")
	hub.register(c)

	for i := 0; i < 3; i++ {
		hub.dispatch(c, []byte(`{"type":"create_room"}`))
	}

	if n := len(hub.rooms.Rooms()); n != 0 {
		t.Fatalf("rejected create_room left %d rooms behind", n)
	}

	var errors int
	for _, msg := range drainOutbound(t, c) {
		if msg["type"] != MessageTypeError {
			continue
		}
		errors++
		if msg["message"] != "player_name is required" {
			t.Errorf("error message = %v", msg["message"])
		}
	}
	if errors != 3 {
		t.Errorf("got %d error replies, want 3", errors)
	}
}
