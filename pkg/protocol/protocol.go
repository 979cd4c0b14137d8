// Package protocol implements the quiz battle real-time protocol: message
// framing and a websocket client that turns server pushes into events.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	pb "github.com/NicolasHaas/ticketbot/pkg/protocol/pb"
)

// MaxMessage is the maximum encoded message size (64KB).
const MaxMessage = 65536

var ErrEmptyMessage = errors.New("protocol: message has no payload")

// Encode serializes a battle message to JSON.
func Encode(msg *pb.BattleMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(data) > MaxMessage {
		return nil, fmt.Errorf("protocol: message too large: %d bytes", len(data))
	}
	return data, nil
}

// Decode parses a battle message. Messages with no payload field are rejected.
func Decode(data []byte) (*pb.BattleMessage, error) {
	if len(data) > MaxMessage {
		return nil, fmt.Errorf("protocol: message too large: %d bytes", len(data))
	}
	msg := &pb.BattleMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	if Kind(msg) == "" {
		return nil, ErrEmptyMessage
	}
	return msg, nil
}

// Kind names the payload carried by msg, or "" if none is set.
func Kind(msg *pb.BattleMessage) string {
	switch {
	case msg.JoinRequest != nil:
		return "join_request"
	case msg.JoinedEvent != nil:
		return "joined_event"
	case msg.StartEvent != nil:
		return "start_event"
	case msg.MarkRequest != nil:
		return "mark_request"
	case msg.ScoreRequest != nil:
		return "score_request"
	case msg.RankEvent != nil:
		return "rank_event"
	case msg.EndEvent != nil:
		return "end_event"
	case msg.LeaveRequest != nil:
		return "leave_request"
	case msg.ErrorEvent != nil:
		return "error_event"
	default:
		return ""
	}
}
