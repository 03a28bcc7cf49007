package events

import (
	"encoding/json"
	"fmt"

	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
)

// ChangeMessage is the body published on the invalidation exchange.
type ChangeMessage struct {
	InstanceID string `json:"instance_id"`
	UserID     int64  `json:"user_id"`
	ExpenseID  int64  `json:"expense_id"`
	Action     string `json:"action"`
}

func NewChangeMessage(instanceID string, change budget.ExpenseChange) ChangeMessage {
	return ChangeMessage{
		InstanceID: instanceID,
		UserID:     change.UserID,
		ExpenseID:  change.ExpenseID,
		Action:     change.Action,
	}
}

func (m ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func (m ChangeMessage) Change() budget.ExpenseChange {
	return budget.ExpenseChange{
		UserID:    m.UserID,
		ExpenseID: m.ExpenseID,
		Action:    m.Action,
	}
}

func ChangeMessageFromJSON(body []byte) (ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return ChangeMessage{}, fmt.Errorf("unmarshal change message: %w", err)
	}
	if msg.InstanceID == "" || msg.UserID <= 0 || msg.ExpenseID <= 0 {
		return ChangeMessage{}, fmt.Errorf("incomplete change message: %s", string(body))
	}
	switch msg.Action {
	case budget.ActionCreated, budget.ActionUpdated, budget.ActionDeleted:
	default:
		return ChangeMessage{}, fmt.Errorf("unknown change action %q", msg.Action)
	}
	return msg, nil
}
