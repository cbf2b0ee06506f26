package battle

import "time"

type MessageType string

const (
	MsgRoomCreated     MessageType = "ROOM_CREATED"
	MsgRoomListUpdated MessageType = "ROOM_LIST_UPDATED"
	MsgPlayerJoined    MessageType = "PLAYER_JOINED"
	MsgPlayerLeft      MessageType = "PLAYER_LEFT"
	MsgPlayerReady     MessageType = "PLAYER_READY"

	MsgGameStart         MessageType = "GAME_START"
	MsgQuestionGenerated MessageType = "QUESTION_GENERATED"
	MsgAnswerSubmitted   MessageType = "ANSWER_SUBMITTED"
	MsgScoresUpdated     MessageType = "SCORES_UPDATED"
	MsgRoundFinished     MessageType = "ROUND_FINISHED"
	MsgGameFinished      MessageType = "GAME_FINISHED"

	MsgCountdown MessageType = "COUNTDOWN"

	MsgError MessageType = "ERROR"
)

// Message is the typed payload published on room and lobby topics.
// Data is always a freshly built value, never a live room structure.
type Message struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"roomId,omitempty"`
	Data      any         `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func newMessage(t MessageType, roomID string, data any) Message {
	return Message{Type: t, RoomID: roomID, Data: data, Timestamp: time.Now()}
}

const lobbyTopic = "battle/roomlist"

func roomTopic(roomID string) string { return "battle/room/" + roomID }

func questionTopic(roomID string) string { return roomTopic(roomID) + "/question" }

func scoreTopic(roomID string) string { return roomTopic(roomID) + "/score" }

// Private queue names answered per user, matching the client protocol.
const (
	queueCreate = "create"
	queueJoin   = "join"
	queueRooms  = "rooms"
)
