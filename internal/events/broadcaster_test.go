package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatali-fataliyev/expense_tracker/internal/budget"
)

func TestChangeMessageFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"instance_id":"a","user_id":1,"expense_id":2,"action":"updated"}`, false},
		{"not json", `nope`, true},
		{"missing instance", `{"user_id":1,"expense_id":2,"action":"updated"}`, true},
		{"missing expense", `{"instance_id":"a","user_id":1,"action":"deleted"}`, true},
		{"unknown action", `{"instance_id":"a","user_id":1,"expense_id":2,"action":"archived"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ChangeMessageFromJSON([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChangeMessageCarriesChange(t *testing.T) {
	change := budget.ExpenseChange{UserID: 7, ExpenseID: 42, Action: budget.ActionDeleted}

	body, err := NewChangeMessage("node-1", change).ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"instance_id":"node-1","user_id":7,"expense_id":42,"action":"deleted"}`, string(body))

	decoded, err := ChangeMessageFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, change, decoded.Change())
}

func TestAcceptSkipsOwnMessages(t *testing.T) {
	b := &Broadcaster{instanceID: "self"}
	change := budget.ExpenseChange{UserID: 1, ExpenseID: 5, Action: budget.ActionUpdated}

	own, err := NewChangeMessage("self", change).ToJSON()
	require.NoError(t, err)
	_, apply, err := b.accept(own)
	require.NoError(t, err)
	assert.False(t, apply)

	peer, err := NewChangeMessage("peer", change).ToJSON()
	require.NoError(t, err)
	got, apply, err := b.accept(peer)
	require.NoError(t, err)
	assert.True(t, apply)
	assert.Equal(t, change, got)

	_, apply, err = b.accept([]byte("{}"))
	assert.Error(t, err)
	assert.False(t, apply)
}
