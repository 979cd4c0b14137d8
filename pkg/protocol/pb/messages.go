// Package pb holds the quiz battle wire messages exchanged over the websocket.
package pb

// BattleMessage wraps all quiz battle messages.
type BattleMessage struct {
	// Only one of these fields should be set.
	JoinRequest  *JoinRequest  `json:"join_request,omitempty"`
	JoinedEvent  *JoinedEvent  `json:"joined_event,omitempty"`
	StartEvent   *StartEvent   `json:"start_event,omitempty"`
	MarkRequest  *MarkRequest  `json:"mark_request,omitempty"`
	ScoreRequest *ScoreRequest `json:"score_request,omitempty"`
	RankEvent    *RankEvent    `json:"rank_event,omitempty"`
	EndEvent     *EndEvent     `json:"end_event,omitempty"`
	LeaveRequest *LeaveRequest `json:"leave_request,omitempty"`
	ErrorEvent   *ErrorEvent   `json:"error_event,omitempty"`
}

// ----- Client -> server -----

type JoinRequest struct {
	BattleCode  int    `json:"battle_code"`
	DisplayName string `json:"display_name"`
}

type MarkRequest struct {
	QuestionID int   `json:"question_id"`
	Correct    bool  `json:"correct"`
	Score      int64 `json:"score"` // running total after this mark
}

type ScoreRequest struct {
	Score int64 `json:"score"`
}

type LeaveRequest struct{}

// ----- Server -> client -----

type JoinedEvent struct {
	PlayerID string `json:"player_id"`
}

type Question struct {
	ID     int `json:"id"`
	Weight int `json:"weight"`
}

type StartEvent struct {
	Questions []Question `json:"questions"`
	RoundSize int        `json:"round_size"`
	ClassAvg  int64      `json:"class_avg"`
}

type RankEvent struct {
	ClassAvg int64 `json:"class_avg"`
}

type EndEvent struct{}

type ErrorEvent struct {
	Message string `json:"message"`
}
