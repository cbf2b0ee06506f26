package battle

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(oracle QuestionOracle) (*Service, *fakeBus, *fakeTickerFactory) {
	bus := &fakeBus{}
	tf := newFakeTickerFactory()
	cfg := ServiceConfig{
		ScoreViewDelay:     0,
		NextRoundDelay:     0,
		OracleTimeout:      time.Second,
		GenerationAttempts: 2,
		MaxOracleCalls:     8,
	}
	svc := NewService(NewRegistry(), oracle, bus, tf, cfg, testLogger())
	return svc, bus, tf
}

// waitForTimers blocks until the service has armed n countdowns, so a
// test never ticks a channel the current round is not reading yet.
func waitForTimers(t *testing.T, tf *fakeTickerFactory, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tf.timers() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d armed timer(s), got %d", n, tf.timers())
}

// setupOracle wires a two-round history quiz: short 5s time limits so
// tests tick the countdown by hand, 80 points for any real answer and
// zero for an empty one.
func setupOracle(rounds int) *MockOracle {
	oracle := &MockOracle{}
	for round := 1; round <= rounds; round++ {
		oracle.On("GenerateQuestion", mock.Anything, "history", "medium", round, "").
			Return(&Question{Content: "question", TimeLimit: 5}, nil).Once()
	}
	oracle.On("ScoreAnswer", mock.Anything, mock.Anything, "").
		Return(ScoreResult{Score: 0, Feedback: "no answer"}, nil)
	oracle.On("ScoreAnswer", mock.Anything, mock.Anything, mock.Anything).
		Return(ScoreResult{Score: 80, Feedback: "solid"}, nil)
	return oracle
}

func TestService_FullGame(t *testing.T) {
	t.Parallel()

	oracle := setupOracle(2)
	svc, bus, tf := newTestService(oracle)

	// create: host A is seated automatically
	cfg := RoomConfig{RoomName: "history battle", MaxPlayers: 2, TotalRounds: 2, Topic: "history", Difficulty: "medium"}
	snap, err := svc.CreateRoom(cfg, "A", "alice")
	require.NoError(t, err)
	roomID := snap.RoomID
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Equal(t, 1, snap.CurrentPlayers)
	bus.waitFor(t, MsgRoomCreated, 1)
	bus.waitFor(t, MsgRoomListUpdated, 1)

	replies := bus.queuePayloads(queueCreate)
	require.Len(t, replies, 1)
	assert.Equal(t, "A", replies[0].userID)
	assert.True(t, replies[0].payload.(opResult).Success)

	// B joins and readies up
	_, err = svc.JoinRoom(roomID, "B", "bob")
	require.NoError(t, err)
	bus.waitFor(t, MsgPlayerJoined, 1)
	require.NoError(t, svc.ToggleReady(roomID, "B"))
	bus.waitFor(t, MsgPlayerReady, 1)

	// A starts: GAME_START, then round 1's question
	require.NoError(t, svc.StartGame(roomID, "A"))
	bus.waitFor(t, MsgGameStart, 1)
	questions := bus.waitFor(t, MsgQuestionGenerated, 1)
	assert.Equal(t, questionPayload{Round: 1, Content: "question", TimeLimit: 5}, questions[0].Data)
	bus.waitFor(t, MsgCountdown, 1)

	info, err := svc.GetRoomInfo(roomID)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaying, info.Status)
	assert.Equal(t, 1, info.CurrentRound)

	// both submit before the countdown runs out: immediate resolution
	require.NoError(t, svc.SubmitAnswer(roomID, "A", "alice", "the printing press"))
	require.NoError(t, svc.SubmitAnswer(roomID, "B", "bob", "the steam engine"))
	bus.waitFor(t, MsgAnswerSubmitted, 2)

	scores := bus.waitFor(t, MsgScoresUpdated, 1)
	result := scores[0].Data.(RoundResult)
	assert.Equal(t, 1, result.Round)
	require.Len(t, result.Scores, 2)
	for _, ps := range result.Scores {
		assert.Equal(t, 80, ps.Score)
		assert.Equal(t, "solid", ps.Feedback)
	}
	bus.waitFor(t, MsgRoundFinished, 1)

	// round 2 question arrives without any manual ticks
	questions = bus.waitFor(t, MsgQuestionGenerated, 2)
	assert.Equal(t, questionPayload{Round: 2, Content: "question", TimeLimit: 5}, questions[1].Data)

	// round 2: only A submits, the countdown expires
	waitForTimers(t, tf, 2)
	require.NoError(t, svc.SubmitAnswer(roomID, "A", "alice", "the wheel"))
	tf.tick(5)

	scores = bus.waitFor(t, MsgScoresUpdated, 2)
	result = scores[1].Data.(RoundResult)
	assert.Equal(t, 2, result.Round)
	for _, ps := range result.Scores {
		switch ps.UserID {
		case "A":
			assert.Equal(t, 80, ps.Score)
		case "B":
			assert.Equal(t, 0, ps.Score, "unanswered round scores zero")
			assert.Empty(t, ps.Answer)
		}
	}

	bus.waitFor(t, MsgRoundFinished, 2)
	finished := bus.waitFor(t, MsgGameFinished, 1)
	final := finished[0].Data.(RoundResult)
	require.Len(t, final.Ranking.Total, 2)
	assert.Equal(t, RankItem{Rank: 1, UserID: "A", Username: "alice", Score: 160}, final.Ranking.Total[0])
	assert.Equal(t, RankItem{Rank: 2, UserID: "B", Username: "bob", Score: 80}, final.Ranking.Total[1])

	info, err = svc.GetRoomInfo(roomID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, info.Status)

	oracle.AssertExpectations(t)
}

func TestService_LateAnswerInGenerationGapDoesNotResolveNextRound(t *testing.T) {
	t.Parallel()

	// round 2's generation is held open so the test can land a submit
	// between ROUND_FINISHED and the next QUESTION_GENERATED
	gate := make(chan struct{})
	oracle := &MockOracle{}
	oracle.On("GenerateQuestion", mock.Anything, "history", "medium", 1, "").
		Return(&Question{Content: "q1", TimeLimit: 5}, nil).Once()
	oracle.On("GenerateQuestion", mock.Anything, "history", "medium", 2, "").
		Run(func(mock.Arguments) { <-gate }).
		Return(&Question{Content: "q2", TimeLimit: 5}, nil).Once()
	oracle.On("ScoreAnswer", mock.Anything, mock.Anything, "").
		Return(ScoreResult{Score: 0, Feedback: "no answer"}, nil)
	oracle.On("ScoreAnswer", mock.Anything, mock.Anything, mock.Anything).
		Return(ScoreResult{Score: 80, Feedback: "solid"}, nil)

	svc, bus, tf := newTestService(oracle)

	cfg := RoomConfig{RoomName: "gap", MaxPlayers: 2, TotalRounds: 2, Topic: "history", Difficulty: "medium"}
	snap, err := svc.CreateRoom(cfg, "A", "alice")
	require.NoError(t, err)
	roomID := snap.RoomID
	_, err = svc.JoinRoom(roomID, "B", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.ToggleReady(roomID, "B"))
	require.NoError(t, svc.StartGame(roomID, "A"))
	bus.waitFor(t, MsgQuestionGenerated, 1)
	waitForTimers(t, tf, 1)

	// round 1: only A answers, the countdown expires
	require.NoError(t, svc.SubmitAnswer(roomID, "A", "alice", "round one answer"))
	tf.tick(5)
	bus.waitFor(t, MsgScoresUpdated, 1)
	bus.waitFor(t, MsgRoundFinished, 1)

	// B's answer arrives while round 2 has no question yet
	err = svc.SubmitAnswer(roomID, "B", "bob", "round one answer, late")
	assert.ErrorIs(t, err, ErrNotPlaying)

	assert.Len(t, bus.messagesOfType(MsgScoresUpdated), 1, "round 2 must not resolve before its question exists")
	assert.Len(t, bus.messagesOfType(MsgQuestionGenerated), 1)

	// once generation completes, round 2 plays out normally
	close(gate)
	questions := bus.waitFor(t, MsgQuestionGenerated, 2)
	assert.Equal(t, questionPayload{Round: 2, Content: "q2", TimeLimit: 5}, questions[1].Data)

	require.NoError(t, svc.SubmitAnswer(roomID, "A", "alice", "round two answer"))
	require.NoError(t, svc.SubmitAnswer(roomID, "B", "bob", "round two answer"))
	scores := bus.waitFor(t, MsgScoresUpdated, 2)
	assert.Equal(t, 2, scores[1].Data.(RoundResult).Round)
	bus.waitFor(t, MsgGameFinished, 1)
	oracle.AssertExpectations(t)
}

func TestService_ResolutionHappensExactlyOnce(t *testing.T) {
	t.Parallel()

	oracle := setupOracle(1)
	svc, bus, tf := newTestService(oracle)

	cfg := RoomConfig{RoomName: "race", MaxPlayers: 2, TotalRounds: 1, Topic: "history", Difficulty: "medium"}
	snap, err := svc.CreateRoom(cfg, "A", "alice")
	require.NoError(t, err)
	roomID := snap.RoomID

	_, err = svc.JoinRoom(roomID, "B", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.ToggleReady(roomID, "B"))
	require.NoError(t, svc.StartGame(roomID, "A"))
	bus.waitFor(t, MsgQuestionGenerated, 1)
	waitForTimers(t, tf, 1)

	require.NoError(t, svc.SubmitAnswer(roomID, "A", "alice", "first answer"))

	// the last submit and the expiring countdown race to resolve
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		svc.SubmitAnswer(roomID, "B", "bob", "last answer")
	}()
	go func() {
		defer wg.Done()
		tf.tick(5)
	}()
	wg.Wait()

	bus.waitFor(t, MsgGameFinished, 1)
	time.Sleep(50 * time.Millisecond) // allow a losing duplicate to surface

	assert.Len(t, bus.messagesOfType(MsgScoresUpdated), 1)
	assert.Len(t, bus.messagesOfType(MsgRoundFinished), 1)
	assert.Len(t, bus.messagesOfType(MsgGameFinished), 1)
}

func TestService_HostLeavingDestroysRoom(t *testing.T) {
	t.Parallel()

	oracle := &MockOracle{}
	svc, bus, _ := newTestService(oracle)

	snap, err := svc.CreateRoom(testRoomConfig(), "A", "alice")
	require.NoError(t, err)
	roomID := snap.RoomID
	_, err = svc.JoinRoom(roomID, "B", "bob")
	require.NoError(t, err)

	svc.LeaveRoom(roomID, "A")

	left := bus.waitFor(t, MsgPlayerLeft, 1)
	payload := left[0].Data.(playerLeftPayload)
	assert.Equal(t, "A", payload.UserID)
	assert.Nil(t, payload.Room, "destroyed rooms carry no snapshot")
	bus.waitFor(t, MsgRoomListUpdated, 2) // creation + destruction

	_, err = svc.GetRoomInfo(roomID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	// leaving a destroyed room is a silent no-op
	svc.LeaveRoom(roomID, "B")
}

func TestService_NonHostLeaveKeepsRoomPlayable(t *testing.T) {
	t.Parallel()

	oracle := &MockOracle{}
	svc, bus, _ := newTestService(oracle)

	snap, err := svc.CreateRoom(testRoomConfig(), "A", "alice")
	require.NoError(t, err)
	_, err = svc.JoinRoom(snap.RoomID, "B", "bob")
	require.NoError(t, err)

	svc.LeaveRoom(snap.RoomID, "B")

	left := bus.waitFor(t, MsgPlayerLeft, 1)
	payload := left[0].Data.(playerLeftPayload)
	require.NotNil(t, payload.Room)
	assert.Equal(t, 1, payload.Room.CurrentPlayers)

	_, err = svc.GetRoomInfo(snap.RoomID)
	assert.NoError(t, err)
}

func TestService_CreateRoomValidation(t *testing.T) {
	t.Parallel()

	oracle := &MockOracle{}
	svc, bus, _ := newTestService(oracle)

	testCases := []struct {
		desc   string
		mutate func(cfg *RoomConfig)
	}{
		{"missing name", func(cfg *RoomConfig) { cfg.RoomName = "" }},
		{"too few players", func(cfg *RoomConfig) { cfg.MaxPlayers = 1 }},
		{"too many players", func(cfg *RoomConfig) { cfg.MaxPlayers = 11 }},
		{"zero rounds", func(cfg *RoomConfig) { cfg.TotalRounds = 0 }},
		{"too many rounds", func(cfg *RoomConfig) { cfg.TotalRounds = 11 }},
		{"missing topic", func(cfg *RoomConfig) { cfg.Topic = "" }},
		{"unknown difficulty", func(cfg *RoomConfig) { cfg.Difficulty = "impossible" }},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := testRoomConfig()
			tc.mutate(&cfg)

			_, err := svc.CreateRoom(cfg, "A", "alice")
			assert.Error(t, err)
		})
	}

	assert.Empty(t, svc.ListRooms(), "no room survives a rejected config")
	for _, reply := range bus.queuePayloads(queueCreate) {
		assert.False(t, reply.payload.(opResult).Success)
	}
}

func TestService_GenerationFailureForceFinishesRoom(t *testing.T) {
	t.Parallel()

	oracle := &MockOracle{}
	oracle.On("GenerateQuestion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, assert.AnError)
	svc, bus, _ := newTestService(oracle)

	cfg := RoomConfig{RoomName: "doomed", MaxPlayers: 2, TotalRounds: 2, Topic: "history", Difficulty: "medium"}
	snap, err := svc.CreateRoom(cfg, "A", "alice")
	require.NoError(t, err)
	roomID := snap.RoomID
	_, err = svc.JoinRoom(roomID, "B", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.ToggleReady(roomID, "B"))
	require.NoError(t, svc.StartGame(roomID, "A"))

	bus.waitFor(t, MsgError, 1)
	bus.waitFor(t, MsgGameFinished, 1)

	info, err := svc.GetRoomInfo(roomID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, info.Status, "a room with no oracle never wedges in PLAYING")

	// generation was retried before giving up
	oracle.AssertNumberOfCalls(t, "GenerateQuestion", 2)
}

func TestService_ErrorsReachTheRoomTopic(t *testing.T) {
	t.Parallel()

	oracle := &MockOracle{}
	svc, bus, _ := newTestService(oracle)

	snap, err := svc.CreateRoom(testRoomConfig(), "A", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.StartGame(snap.RoomID, "A"), ErrNotEnoughPlayers)
	assert.ErrorIs(t, svc.ToggleReady(snap.RoomID, "A"), ErrHostCannotReady)
	assert.ErrorIs(t, svc.SubmitAnswer(snap.RoomID, "A", "alice", "hi"), ErrNotPlaying)

	errs := bus.messagesOfType(MsgError)
	require.Len(t, errs, 3)
	assert.Equal(t, map[string]string{"message": ErrNotEnoughPlayers.Error()}, errs[0].Data)
}

func TestService_ListRoomsShowsOnlyWaiting(t *testing.T) {
	t.Parallel()

	oracle := setupOracle(2)
	svc, _, _ := newTestService(oracle)

	cfg := RoomConfig{RoomName: "r1", MaxPlayers: 2, TotalRounds: 2, Topic: "history", Difficulty: "medium"}
	first, err := svc.CreateRoom(cfg, "A", "alice")
	require.NoError(t, err)
	second, err := svc.CreateRoom(testRoomConfig(), "C", "carol")
	require.NoError(t, err)

	_, err = svc.JoinRoom(first.RoomID, "B", "bob")
	require.NoError(t, err)
	require.NoError(t, svc.ToggleReady(first.RoomID, "B"))
	require.NoError(t, svc.StartGame(first.RoomID, "A"))

	rooms := svc.ListRooms()
	require.Len(t, rooms, 1)
	assert.Equal(t, second.RoomID, rooms[0].RoomID)
}
