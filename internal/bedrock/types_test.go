package bedrock

import "testing"

func TestNewSession(t *testing.T) {
	a := NewSession("AGENT1", "ALIAS1")
	b := NewSession("AGENT1", "ALIAS1")

	if a.AgentID != "AGENT1" || a.AgentAliasID != "ALIAS1" {
		t.Errorf("session = %+v, want agent identifiers preserved", a)
	}
	if a.ID == "" {
		t.Error("session ID is empty")
	}
	if a.ID == b.ID {
		t.Error("two sessions share the same ID")
	}
}

func TestTurnValidate(t *testing.T) {
	tests := []struct {
		name    string
		turn    Turn
		wantErr bool
	}{
		{
			name: "user turn",
			turn: UserTurn("hello"),
		},
		{
			name: "result turn",
			turn: ResultTurn(SessionState{
				InvocationID: "inv-1",
				Results: []InvocationResult{
					{ActionGroup: "actions", Function: "action_get_time", Body: `{"time":"12:00:00"}`, State: StateReprompt},
				},
			}),
		},
		{
			name:    "empty turn",
			turn:    Turn{},
			wantErr: true,
		},
		{
			name: "both populated",
			turn: Turn{
				InputText: "hello",
				State:     &SessionState{InvocationID: "inv-1"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.turn.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
