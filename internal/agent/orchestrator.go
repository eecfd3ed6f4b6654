// Package agent implements the turn orchestration loop.
//
// One turn runs from a single player chat message to the agent's final
// textual answer, spanning any number of returnControl round-trips in
// between. Within a session turns are strictly sequential: each chat
// event is processed fully, including all nested tool round-trips,
// before the next one is taken.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/reeve/internal/actions"
	"github.com/nugget/reeve/internal/bedrock"
	"github.com/nugget/reeve/internal/world"
)

const (
	defaultMaxRoundTrips = 8
	defaultInvokeTimeout = 120 * time.Second
	defaultRetryAttempts = 2

	// transportApology is chatted when the agent can't be reached at all.
	transportApology = "Sorry, I can't reach my brain right now. Try again in a bit."

	// budgetApology is chatted when a turn burns through its tool
	// round-trip budget without resolving.
	budgetApology = "Sorry, that took more steps than I'm allowed. I gave up."
)

// Chatter emits outbound chat messages to the game.
type Chatter interface {
	Chat(ctx context.Context, text string) error
}

// Transcript records conversation activity. The concrete implementation
// is the transcript store; recording failures are logged, never fatal.
type Transcript interface {
	RecordMessage(sessionID, role, player, content string) error
	RecordToolCall(sessionID, invocationID, function string, params, result string, state string, elapsed time.Duration) error
}

// Telemetry publishes activity events for operators. The concrete
// implementation is the MQTT publisher.
type Telemetry interface {
	ChatReceived(player string)
	ChatSent()
	ActionExecuted(function string, state bedrock.ResponseState)
}

// Orchestrator drives multi-turn exchanges with the Bedrock agent and
// dispatches its returnControl requests through the action registry.
type Orchestrator struct {
	logger   *slog.Logger
	invoker  bedrock.Invoker
	session  bedrock.Session
	registry *actions.Registry
	chat     Chatter
	botName  string

	maxRoundTrips int
	invokeTimeout time.Duration
	retryAttempts int

	transcript Transcript
	telemetry  Telemetry
}

// New creates an Orchestrator with default turn limits. The session is
// fixed for the orchestrator's lifetime; its identifiers never change
// mid-conversation.
func New(logger *slog.Logger, invoker bedrock.Invoker, session bedrock.Session, registry *actions.Registry, chat Chatter, botName string) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:        logger.With("component", "agent"),
		invoker:       invoker,
		session:       session,
		registry:      registry,
		chat:          chat,
		botName:       botName,
		maxRoundTrips: defaultMaxRoundTrips,
		invokeTimeout: defaultInvokeTimeout,
		retryAttempts: defaultRetryAttempts,
	}
}

// SetLimits overrides the turn policy. Zero values keep the defaults.
func (o *Orchestrator) SetLimits(maxRoundTrips int, invokeTimeout time.Duration, retryAttempts int) {
	if maxRoundTrips > 0 {
		o.maxRoundTrips = maxRoundTrips
	}
	if invokeTimeout > 0 {
		o.invokeTimeout = invokeTimeout
	}
	if retryAttempts > 0 {
		o.retryAttempts = retryAttempts
	}
}

// SetTranscript configures conversation recording.
func (o *Orchestrator) SetTranscript(t Transcript) {
	o.transcript = t
}

// SetTelemetry configures activity event publishing.
func (o *Orchestrator) SetTelemetry(t Telemetry) {
	o.telemetry = t
}

// Session returns the session identifiers this orchestrator is bound to.
func (o *Orchestrator) Session() bedrock.Session {
	return o.session
}

// Run consumes chat events until ctx is cancelled or the stream closes.
// The bot's own chat messages are ignored. Turn failures are logged and
// the loop keeps going; one bad turn must not take the bot down.
func (o *Orchestrator) Run(ctx context.Context, chats <-chan world.ChatEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-chats:
			if !ok {
				return fmt.Errorf("chat stream closed")
			}
			if ev.PlayerName == o.botName {
				continue
			}
			if err := o.HandleChat(ctx, ev.PlayerName, ev.Message); err != nil {
				o.logger.Error("turn failed", "player", ev.PlayerName, "error", err)
			}
		}
	}
}

// HandleChat runs one complete turn for a player chat message: invoke
// the agent, surface any completion text, dispatch any returnControl
// request, and loop until the agent stops asking for tools or the
// round-trip budget runs out.
func (o *Orchestrator) HandleChat(ctx context.Context, player, message string) error {
	input := fmt.Sprintf("%s says: %s", player, message)

	o.logger.Info("turn started",
		"session_id", o.session.ID,
		"player", player,
		"message", message,
	)
	o.recordMessage("user", player, input)
	if o.telemetry != nil {
		o.telemetry.ChatReceived(player)
	}

	turn := bedrock.UserTurn(input)
	start := time.Now()

	for trip := 0; ; trip++ {
		resp, err := o.invokeWithRetry(ctx, turn)
		if err != nil {
			o.logger.Error("agent unreachable, abandoning turn",
				"session_id", o.session.ID,
				"trips", trip,
				"error", err,
			)
			o.say(ctx, transportApology)
			return fmt.Errorf("invoke agent: %w", err)
		}

		// Completion text is surfaced before any tool handling, even
		// when a control-return rides along in the same response. The
		// players see the agent narrate first, then the bot act.
		if resp.Completion != "" {
			o.say(ctx, resp.Completion)
			o.recordMessage("assistant", o.botName, resp.Completion)
		}

		if resp.Control == nil {
			o.logger.Info("turn completed",
				"session_id", o.session.ID,
				"trips", trip,
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return nil
		}

		if trip >= o.maxRoundTrips {
			o.logger.Warn("turn aborted, tool round-trip budget exhausted",
				"session_id", o.session.ID,
				"max_round_trips", o.maxRoundTrips,
			)
			o.say(ctx, budgetApology)
			return fmt.Errorf("turn aborted after %d tool round-trips", o.maxRoundTrips)
		}

		turn = o.dispatch(ctx, resp.Control)
	}
}

// dispatch executes one returnControl request and packages its outcome
// as the next turn's session state.
func (o *Orchestrator) dispatch(ctx context.Context, control *bedrock.ReturnControl) bedrock.Turn {
	execStart := time.Now()
	result, state := o.registry.Execute(ctx, control.Function, control.Parameters)
	elapsed := time.Since(execStart)

	body, _ := json.Marshal(result)

	o.logger.Info("tool call dispatched",
		"session_id", o.session.ID,
		"invocation_id", control.InvocationID,
		"function", control.Function,
		"state", string(state),
		"elapsed", elapsed.Round(time.Millisecond),
	)

	if o.transcript != nil {
		params, _ := json.Marshal(control.Parameters)
		if err := o.transcript.RecordToolCall(o.session.ID, control.InvocationID, control.Function, string(params), string(body), string(state), elapsed); err != nil {
			o.logger.Warn("transcript tool call record failed", "error", err)
		}
	}
	if o.telemetry != nil {
		o.telemetry.ActionExecuted(control.Function, state)
	}

	return bedrock.ResultTurn(bedrock.SessionState{
		InvocationID: control.InvocationID,
		Results: []bedrock.InvocationResult{{
			ActionGroup: control.ActionGroup,
			Function:    control.Function,
			Body:        string(body),
			State:       state,
		}},
	})
}

// invokeWithRetry calls the agent with a per-invocation deadline and
// bounded retries on transport failure.
func (o *Orchestrator) invokeWithRetry(ctx context.Context, turn bedrock.Turn) (*bedrock.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= o.retryAttempts; attempt++ {
		if attempt > 0 {
			o.logger.Warn("retrying agent invocation",
				"session_id", o.session.ID,
				"attempt", attempt,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		invokeCtx, cancel := context.WithTimeout(ctx, o.invokeTimeout)
		resp, err := o.invoker.Invoke(invokeCtx, o.session, turn)
		cancel()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", o.retryAttempts+1, lastErr)
}

// say chats text to the game, logging (not failing) on error.
func (o *Orchestrator) say(ctx context.Context, text string) {
	if err := o.chat.Chat(ctx, text); err != nil {
		o.logger.Error("chat send failed", "error", err)
		return
	}
	if o.telemetry != nil {
		o.telemetry.ChatSent()
	}
}

// recordMessage writes a message to the transcript when one is wired.
func (o *Orchestrator) recordMessage(role, player, content string) {
	if o.transcript == nil {
		return
	}
	if err := o.transcript.RecordMessage(o.session.ID, role, player, content); err != nil {
		o.logger.Warn("transcript message record failed", "error", err)
	}
}
