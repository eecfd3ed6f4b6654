// Package bedrock provides the client for Agents for Amazon Bedrock.
//
// The remote agent is treated as an opaque request/response service: each
// invocation carries either fresh user text or the results of a previous
// returnControl tool call, and each response is normalized into a
// completion string plus an optional control-return request.
package bedrock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Session identifies one logical conversation with the remote agent. It
// is created once per bot process, is immutable, and is never persisted;
// all round-trips of a conversation share the same identifiers.
type Session struct {
	ID           string
	AgentID      string
	AgentAliasID string
}

// NewSession creates a Session with a fresh random session ID.
func NewSession(agentID, agentAliasID string) Session {
	return Session{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		AgentAliasID: agentAliasID,
	}
}

// Parameter is a single named argument of a function invocation. Order
// is preserved as delivered by the agent.
type Parameter struct {
	Name  string
	Value string
}

// ResponseState tells the agent how to treat a tool call's result.
// These are the only two values the wire protocol permits.
type ResponseState string

const (
	// StateReprompt feeds the result back to the agent so the turn can
	// continue.
	StateReprompt ResponseState = "REPROMPT"

	// StateFailure marks the tool call as a dead end. The turn still
	// reports back to the agent, but no further dispatch is attempted
	// for this call.
	StateFailure ResponseState = "FAILURE"
)

// ReturnControl is the agent's request for the host to execute a named
// action and report its result back.
type ReturnControl struct {
	InvocationID string
	ActionGroup  string
	Function     string
	Parameters   []Parameter
}

// InvocationResult carries one executed tool call's outcome back to the
// agent. Body is the JSON encoding of the action's result payload.
type InvocationResult struct {
	ActionGroup string
	Function    string
	Body        string
	State       ResponseState
}

// SessionState resumes a turn from a pending returnControl invocation.
type SessionState struct {
	InvocationID string
	Results      []InvocationResult
}

// Turn is one request to the agent. Exactly one of InputText and State
// must be populated: a turn either starts from fresh user text or
// resumes from a tool call result.
type Turn struct {
	InputText string
	State     *SessionState
}

// UserTurn builds a Turn carrying fresh user input.
func UserTurn(text string) Turn {
	return Turn{InputText: text}
}

// ResultTurn builds a Turn resuming from a tool call result.
func ResultTurn(state SessionState) Turn {
	return Turn{State: &state}
}

// validate enforces the exactly-one-of invariant on a Turn.
func (t Turn) validate() error {
	if t.InputText == "" && t.State == nil {
		return fmt.Errorf("turn carries neither input text nor session state")
	}
	if t.InputText != "" && t.State != nil {
		return fmt.Errorf("turn carries both input text and session state")
	}
	return nil
}

// Response is the normalized agent response. The transport may deliver
// completion text as a chunk sequence or as a single aggregate object;
// both shapes normalize to the same concatenated Completion. Both fields
// may be populated in one response: the completion text is surfaced to
// chat before the control-return is processed.
type Response struct {
	Completion string
	Control    *ReturnControl
}

// Invoker is the remote agent invocation boundary. The orchestrator
// depends on this interface; the AWS-backed [Client] is the production
// implementation.
type Invoker interface {
	Invoke(ctx context.Context, session Session, turn Turn) (*Response, error)
}
