package battle

import (
	"sync"
	"time"
)

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "WAITING"
	StatusPlaying  RoomStatus = "PLAYING"
	StatusScoring  RoomStatus = "SCORING"
	StatusFinished RoomStatus = "FINISHED"
)

// RoomConfig is fixed at creation and immutable afterwards.
type RoomConfig struct {
	RoomName    string `json:"roomName" validate:"required,max=50"`
	MaxPlayers  int    `json:"maxPlayers" validate:"required,min=2,max=10"`
	TotalRounds int    `json:"totalRounds" validate:"required,min=1,max=10"`
	Topic       string `json:"topic" validate:"required,max=100"`
	Difficulty  string `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Scenario    string `json:"scenario" validate:"max=100"`
}

// Question is supplied by the oracle; the engine treats its texts as opaque.
type Question struct {
	QuestionID      string    `json:"questionId"`
	Content         string    `json:"content"`
	Topic           string    `json:"topic"`
	Difficulty      string    `json:"difficulty"`
	Round           int       `json:"round"`
	GeneratedAt     time.Time `json:"generateTime"`
	TimeLimit       int       `json:"timeLimit"`
	ScoringCriteria string    `json:"scoringCriteria"`
	ReferenceAnswer string    `json:"referenceAnswer"`
}

// ScoreResult is the oracle's verdict for one answer.
type ScoreResult struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// RoundScore is one entry in a player's per-room history.
type RoundScore struct {
	Round  int    `json:"round"`
	Answer string `json:"answer"`
	Score  int    `json:"score"`
}

// Player is the per-user session inside one room. All fields are
// guarded by the owning room's mutex.
type Player struct {
	userID   string
	username string
	joinedAt time.Time
	ready    bool

	// per-round state, nil until the player submits / is scored
	answer *string
	score  *int

	totalScore int
	history    []RoundScore
}

func newPlayer(userID, username string) *Player {
	return &Player{
		userID:   userID,
		username: username,
		joinedAt: time.Now(),
	}
}

// Room is the in-memory authority for one match. Every mutation goes
// through a method holding mu, so state machine transitions are
// serialized per room without blocking other rooms.
type Room struct {
	mu sync.Mutex

	id        string
	config    RoomConfig
	hostID    string
	createdAt time.Time

	status         RoomStatus
	currentRound   int
	question       *Question
	roundStartedAt time.Time

	players map[string]*Player
	order   []string // join order, for deterministic snapshots and rankings

	timer     *RoundTimer
	destroyed bool
}

func NewRoom(id string, cfg RoomConfig, hostID, hostName string) *Room {
	r := &Room{
		id:        id,
		config:    cfg,
		hostID:    hostID,
		createdAt: time.Now(),
		status:    StatusWaiting,
		players:   make(map[string]*Player),
	}
	// the host joins its own room automatically
	r.players[hostID] = newPlayer(hostID, hostName)
	r.order = append(r.order, hostID)
	return r
}

func (r *Room) ID() string { return r.id }

func (r *Room) Config() RoomConfig { return r.config }

func (r *Room) HostID() string { return r.hostID }
