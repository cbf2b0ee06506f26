package battle

import "encoding/json"

// Action is an inbound player command decoded off the wire.
type Action struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

const (
	ActionCreateRoom   = "createRoom"
	ActionJoinRoom     = "joinRoom"
	ActionLeaveRoom    = "leaveRoom"
	ActionToggleReady  = "toggleReady"
	ActionStartGame    = "startGame"
	ActionSubmitAnswer = "submitAnswer"
	ActionListRooms    = "rooms"
)

type submitAnswerRequest struct {
	Answer string `json:"answer"`
}

// HandleAction routes one raw inbound frame to exactly one state
// machine call. Failures are answered on the acting player's queue or
// the room topic; a malformed frame never takes the room down.
func (s *Service) HandleAction(userID, username string, raw []byte) {
	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		s.logger.Warn("unparseable action frame", "user_id", userID, "err", err)
		return
	}

	switch action.Type {
	case ActionCreateRoom:
		var cfg RoomConfig
		if err := json.Unmarshal(action.Data, &cfg); err != nil {
			s.bus.PublishToUser(userID, queueCreate, opResult{Success: false, Message: "invalid-room-config"})
			return
		}
		s.CreateRoom(cfg, userID, username)

	case ActionJoinRoom:
		s.JoinRoom(action.RoomID, userID, username)

	case ActionLeaveRoom:
		s.LeaveRoom(action.RoomID, userID)

	case ActionToggleReady:
		s.ToggleReady(action.RoomID, userID)

	case ActionStartGame:
		s.StartGame(action.RoomID, userID)

	case ActionSubmitAnswer:
		var req submitAnswerRequest
		if err := json.Unmarshal(action.Data, &req); err != nil {
			s.publishError(action.RoomID, err)
			return
		}
		s.SubmitAnswer(action.RoomID, userID, username, req.Answer)

	case ActionListRooms:
		s.SendRoomList(userID)

	default:
		s.logger.Warn("unknown action type", "user_id", userID, "type", action.Type)
	}
}
