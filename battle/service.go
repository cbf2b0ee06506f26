package battle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const defaultTimeLimit = 60 // seconds per round

// ServiceConfig tunes the pacing knobs; tests shrink them to zero.
type ServiceConfig struct {
	// pause after SCORES_UPDATED so players can read the results
	ScoreViewDelay time.Duration
	// pause between ROUND_FINISHED and the next round's generation
	NextRoundDelay time.Duration
	// ceiling on a single oracle call; exceeding it is an oracle failure
	OracleTimeout time.Duration
	// attempts at generating one round's question before the room is
	// force-finished
	GenerationAttempts int
	// cap on in-flight oracle calls across all rooms
	MaxOracleCalls int
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ScoreViewDelay:     3 * time.Second,
		NextRoundDelay:     2 * time.Second,
		OracleTimeout:      2 * time.Minute,
		GenerationAttempts: 2,
		MaxOracleCalls:     16,
	}
}

// Service is the orchestrator: it maps inbound player actions onto the
// room state machine and relays the outcomes to the broadcaster. Slow
// work (oracle calls, countdowns, grace pauses) always runs on its own
// goroutine, off every room's critical section.
type Service struct {
	registry *Registry
	oracle   QuestionOracle
	bus      Broadcaster
	ticker   TickerFactory
	cfg      ServiceConfig
	validate *validator.Validate
	logger   *slog.Logger

	oracleSlots chan struct{}
}

func NewService(registry *Registry, oracle QuestionOracle, bus Broadcaster, ticker TickerFactory, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.GenerationAttempts < 1 {
		cfg.GenerationAttempts = 1
	}
	if cfg.MaxOracleCalls < 1 {
		cfg.MaxOracleCalls = 1
	}
	return &Service{
		registry:    registry,
		oracle:      oracle,
		bus:         bus,
		ticker:      ticker,
		cfg:         cfg,
		validate:    validator.New(),
		logger:      logger,
		oracleSlots: make(chan struct{}, cfg.MaxOracleCalls),
	}
}

// opResult is the success/failure envelope answered on private queues.
type opResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message,omitempty"`
	RoomID  string        `json:"roomId,omitempty"`
	Room    *RoomSnapshot `json:"room,omitempty"`
}

// CreateRoom validates the configuration, registers the room with its
// host already seated, and announces it room-wide and lobby-wide. The
// creator gets a private reply either way.
func (s *Service) CreateRoom(cfg RoomConfig, userID, username string) (*RoomSnapshot, error) {
	if err := s.validate.Struct(cfg); err != nil {
		s.logger.Warn("rejecting room config", "user_id", userID, "err", err)
		s.bus.PublishToUser(userID, queueCreate, opResult{Success: false, Message: "invalid-room-config"})
		return nil, err
	}

	room := s.registry.Create(cfg, userID, username)
	snap := room.Snapshot()
	s.logger.Info("room created", "room_id", room.ID(), "room_name", cfg.RoomName, "host", username)

	s.bus.Publish(roomTopic(room.ID()), newMessage(MsgRoomCreated, room.ID(), snap))
	s.bus.Publish(lobbyTopic, newMessage(MsgRoomListUpdated, "", nil))
	s.bus.PublishToUser(userID, queueCreate, opResult{Success: true, RoomID: room.ID(), Room: &snap})
	return &snap, nil
}

// JoinRoom seats a player in a waiting room and tells everyone.
func (s *Service) JoinRoom(roomID, userID, username string) (*RoomSnapshot, error) {
	room, err := s.registry.Get(roomID)
	if err == nil {
		err = room.Join(userID, username)
	}
	if err != nil {
		s.logger.Warn("join rejected", "room_id", roomID, "user_id", userID, "err", err)
		s.bus.PublishToUser(userID, queueJoin, opResult{Success: false, Message: err.Error()})
		return nil, err
	}

	snap := room.Snapshot()
	s.logger.Info("player joined", "room_id", roomID, "user_id", userID, "username", username)
	s.bus.Publish(roomTopic(roomID), newMessage(MsgPlayerJoined, roomID, snap))
	s.bus.PublishToUser(userID, queueJoin, opResult{Success: true, RoomID: roomID, Room: &snap})
	return &snap, nil
}

// playerLeftPayload carries who left plus the surviving room, if any.
type playerLeftPayload struct {
	UserID string        `json:"userId"`
	Room   *RoomSnapshot `json:"room,omitempty"`
}

// LeaveRoom removes the player unconditionally. When the host leaves or
// the room empties, the room is destroyed: pulled from the registry,
// its countdown cancelled, and the lobby notified.
func (s *Service) LeaveRoom(roomID, userID string) {
	room, err := s.registry.Get(roomID)
	if err != nil {
		return
	}

	payload := playerLeftPayload{UserID: userID}
	if destroyed := room.Leave(userID); destroyed {
		s.registry.Remove(roomID)
		s.logger.Info("room destroyed", "room_id", roomID, "leaver", userID)
		s.bus.Publish(roomTopic(roomID), newMessage(MsgPlayerLeft, roomID, payload))
		s.bus.Publish(lobbyTopic, newMessage(MsgRoomListUpdated, "", nil))
		return
	}

	snap := room.Snapshot()
	payload.Room = &snap
	s.logger.Info("player left", "room_id", roomID, "user_id", userID)
	s.bus.Publish(roomTopic(roomID), newMessage(MsgPlayerLeft, roomID, payload))
}

// ToggleReady flips a member's ready flag and rebroadcasts the room.
func (s *Service) ToggleReady(roomID, userID string) error {
	room, err := s.registry.Get(roomID)
	if err == nil {
		_, err = room.ToggleReady(userID)
	}
	if err != nil {
		s.publishError(roomID, err)
		return err
	}
	s.bus.Publish(roomTopic(roomID), newMessage(MsgPlayerReady, roomID, room.Snapshot()))
	return nil
}

// StartGame begins round 1: broadcast GAME_START, then generate the
// question asynchronously so a slow oracle never blocks the caller.
func (s *Service) StartGame(roomID, userID string) error {
	room, err := s.registry.Get(roomID)
	if err == nil {
		err = room.Start(userID)
	}
	if err != nil {
		s.publishError(roomID, err)
		return err
	}

	s.logger.Info("game started", "room_id", roomID)
	s.bus.Publish(roomTopic(roomID), newMessage(MsgGameStart, roomID, nil))
	go s.startRound(room)
	return nil
}

type answerSubmittedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// SubmitAnswer records the answer; when the last member submits, the
// countdown is cut short and resolution starts immediately.
func (s *Service) SubmitAnswer(roomID, userID, username, answer string) error {
	room, err := s.registry.Get(roomID)
	if err != nil {
		s.publishError(roomID, err)
		return err
	}
	allSubmitted, round, err := room.SubmitAnswer(userID, answer)
	if err != nil {
		s.publishError(roomID, err)
		return err
	}

	s.logger.Info("answer submitted", "room_id", roomID, "user_id", userID, "answer_len", len(answer))
	s.bus.Publish(roomTopic(roomID), newMessage(MsgAnswerSubmitted, roomID, answerSubmittedPayload{UserID: userID, Username: username}))

	if allSubmitted {
		go s.resolveRound(room, round)
	}
	return nil
}

// GetRoomInfo returns a read-only snapshot.
func (s *Service) GetRoomInfo(roomID string) (RoomSnapshot, error) {
	room, err := s.registry.Get(roomID)
	if err != nil {
		return RoomSnapshot{}, err
	}
	return room.Snapshot(), nil
}

// ListRooms returns snapshots of the rooms still in WAITING.
func (s *Service) ListRooms() []RoomSnapshot {
	rooms := s.registry.ListWaiting()
	out := make([]RoomSnapshot, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Snapshot())
	}
	return out
}

// SendRoomList answers a player's lobby query on their private queue.
func (s *Service) SendRoomList(userID string) {
	s.bus.PublishToUser(userID, queueRooms, s.ListRooms())
}

type questionPayload struct {
	Round     int    `json:"round"`
	Content   string `json:"content"`
	TimeLimit int    `json:"timeLimit"`
}

// startRound fetches the round's question (bounded retries), attaches
// it, broadcasts it and arms the countdown. Repeated generation failure
// aborts the game rather than leaving the room wedged in PLAYING.
func (s *Service) startRound(room *Room) {
	snap := room.Snapshot()
	if snap.Status != StatusPlaying {
		return
	}
	round := snap.CurrentRound

	var q *Question
	var err error
	for attempt := 1; attempt <= s.cfg.GenerationAttempts; attempt++ {
		q, err = s.generateQuestion(snap, round)
		if err == nil {
			break
		}
		s.logger.Warn("question generation failed", "room_id", snap.RoomID, "round", round, "attempt", attempt, "err", err)
	}
	if err != nil {
		s.publishError(snap.RoomID, err)
		s.finishGame(room, RoundResult{Round: round})
		return
	}

	if err := room.BeginRound(q); err != nil {
		// room finished or got destroyed while we were generating
		s.logger.Warn("dropping generated question", "room_id", snap.RoomID, "round", round, "err", err)
		return
	}

	s.bus.Publish(questionTopic(snap.RoomID), newMessage(MsgQuestionGenerated, snap.RoomID, questionPayload{
		Round:     q.Round,
		Content:   q.Content,
		TimeLimit: q.TimeLimit,
	}))

	timer := StartRoundTimer(q.TimeLimit, s.ticker, func(remaining int) {
		s.bus.Publish(roomTopic(snap.RoomID), newMessage(MsgCountdown, snap.RoomID, map[string]int{"remaining": remaining}))
	}, func() {
		s.resolveRound(room, round)
	})
	room.SetTimer(timer, round)
}

func (s *Service) generateQuestion(snap RoomSnapshot, round int) (*Question, error) {
	s.oracleSlots <- struct{}{}
	defer func() { <-s.oracleSlots }()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OracleTimeout)
	defer cancel()

	q, err := s.oracle.GenerateQuestion(ctx, snap.Topic, snap.Difficulty, round, snap.Scenario)
	if err != nil {
		return nil, err
	}
	if q.QuestionID == "" {
		q.QuestionID = uuid.NewString()
	}
	if q.GeneratedAt.IsZero() {
		q.GeneratedAt = time.Now()
	}
	if q.TimeLimit <= 0 {
		q.TimeLimit = defaultTimeLimit
	}
	q.Round = round
	return q, nil
}

// resolveRound is the single resolution path, reached from either the
// last submit or timer expiry. BeginScoring guarantees only one caller
// proceeds per round.
func (s *Service) resolveRound(room *Room, round int) {
	if !room.BeginScoring(round) {
		return
	}
	room.StopTimer()
	roomID := room.ID()
	s.logger.Info("resolving round", "room_id", roomID, "round", round)

	question := room.CurrentQuestion()
	answers := room.AnswersForScoring()

	// grade every member concurrently; one failure degrades to zero
	// for that player only
	results := make(map[string]ScoreResult, len(answers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for userID, answer := range answers {
		wg.Add(1)
		go func(userID, answer string) {
			defer wg.Done()
			res := s.scoreAnswer(question, answer)
			mu.Lock()
			results[userID] = res
			mu.Unlock()
		}(userID, answer)
	}
	wg.Wait()

	if err := room.ApplyScores(results); err != nil {
		s.logger.Warn("scores dropped", "room_id", roomID, "round", round, "err", err)
		return
	}
	result := room.RoundResult(results)
	s.bus.Publish(scoreTopic(roomID), newMessage(MsgScoresUpdated, roomID, result))

	// let players read the scoreboard before moving on; no lock is
	// held across this pause
	time.Sleep(s.cfg.ScoreViewDelay)

	status := room.FinishRound()
	s.bus.Publish(roomTopic(roomID), newMessage(MsgRoundFinished, roomID, nil))

	if status == StatusFinished {
		s.logger.Info("game finished", "room_id", roomID, "rounds", round)
		s.bus.Publish(roomTopic(roomID), newMessage(MsgGameFinished, roomID, result))
		return
	}

	time.Sleep(s.cfg.NextRoundDelay)
	s.startRound(room)
}

func (s *Service) scoreAnswer(question *Question, answer string) ScoreResult {
	s.oracleSlots <- struct{}{}
	defer func() { <-s.oracleSlots }()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.OracleTimeout)
	defer cancel()

	res, err := s.oracle.ScoreAnswer(ctx, question, answer)
	if err != nil {
		s.logger.Warn("scoring failed", "err", err)
		return ScoreResult{Score: 0, Feedback: "scoring-failed"}
	}
	return res
}

// finishGame closes a room that cannot continue and publishes the final
// standings it has.
func (s *Service) finishGame(room *Room, result RoundResult) {
	room.ForceFinish()
	room.StopTimer()
	s.bus.Publish(roomTopic(room.ID()), newMessage(MsgGameFinished, room.ID(), result))
}

func (s *Service) publishError(roomID string, err error) {
	s.bus.Publish(roomTopic(roomID), newMessage(MsgError, roomID, map[string]string{"message": err.Error()}))
}
