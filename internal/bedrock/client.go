package bedrock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/nugget/reeve/internal/config"
)

// runtimeAPI is the narrow slice of the Bedrock agent runtime client the
// package uses.
type runtimeAPI interface {
	InvokeAgent(ctx context.Context, params *bedrockagentruntime.InvokeAgentInput, optFns ...func(*bedrockagentruntime.Options)) (*bedrockagentruntime.InvokeAgentOutput, error)
}

// Client invokes an Agents for Amazon Bedrock agent and normalizes its
// streamed responses. It implements [Invoker].
type Client struct {
	runtime runtimeAPI
	logger  *slog.Logger
}

// NewClient creates a Client for the given AWS region using the default
// credential chain.
func NewClient(ctx context.Context, region string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Client{
		runtime: bedrockagentruntime.NewFromConfig(awsCfg),
		logger:  logger.With("component", "bedrock"),
	}, nil
}

// Invoke sends one turn to the agent and drains the response stream into
// a normalized [Response]. Completion chunks are concatenated in arrival
// order; the returnControl event, if any, is validated and captured.
func (c *Client) Invoke(ctx context.Context, session Session, turn Turn) (*Response, error) {
	if err := turn.validate(); err != nil {
		return nil, err
	}

	input := &bedrockagentruntime.InvokeAgentInput{
		AgentId:      aws.String(session.AgentID),
		AgentAliasId: aws.String(session.AgentAliasID),
		SessionId:    aws.String(session.ID),
	}
	if turn.InputText != "" {
		input.InputText = aws.String(turn.InputText)
	}
	if turn.State != nil {
		input.SessionState = convertSessionState(turn.State)
	}

	c.logger.Debug("invoking agent",
		"session_id", session.ID,
		"agent_id", session.AgentID,
		"has_input_text", turn.InputText != "",
		"has_session_state", turn.State != nil,
	)

	out, err := c.runtime.InvokeAgent(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("invoke agent: %w", err)
	}

	stream := out.GetStream()
	defer stream.Close()

	resp := &Response{}
	for event := range stream.Events() {
		switch v := event.(type) {
		case *types.ResponseStreamMemberChunk:
			resp.Completion += string(v.Value.Bytes)
		case *types.ResponseStreamMemberReturnControl:
			control, err := convertReturnControl(v.Value, c.logger)
			if err != nil {
				return nil, err
			}
			resp.Control = control
		default:
			c.logger.Log(ctx, config.LevelTrace, "ignoring stream event", "type", fmt.Sprintf("%T", event))
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("agent response stream: %w", err)
	}

	c.logger.Debug("agent response",
		"session_id", session.ID,
		"completion_len", len(resp.Completion),
		"has_control", resp.Control != nil,
	)

	return resp, nil
}

// convertSessionState maps our SessionState onto the wire shape.
func convertSessionState(state *SessionState) *types.SessionState {
	results := make([]types.InvocationResultMember, 0, len(state.Results))
	for _, r := range state.Results {
		results = append(results, &types.InvocationResultMemberMemberFunctionResult{
			Value: types.FunctionResult{
				ActionGroup: aws.String(r.ActionGroup),
				Function:    aws.String(r.Function),
				ResponseBody: map[string]types.ContentBody{
					"TEXT": {Body: aws.String(r.Body)},
				},
				ResponseState: types.ResponseState(r.State),
			},
		})
	}
	return &types.SessionState{
		InvocationId:                   aws.String(state.InvocationID),
		ReturnControlInvocationResults: results,
	}
}

// convertReturnControl validates and flattens a returnControl payload.
// A well-formed payload carries a non-empty invocation ID and at least
// one function invocation description. Only the first invocation input
// is honored; any extras are logged and ignored.
func convertReturnControl(payload types.ReturnControlPayload, logger *slog.Logger) (*ReturnControl, error) {
	invocationID := aws.ToString(payload.InvocationId)
	if invocationID == "" {
		return nil, fmt.Errorf("malformed returnControl payload: empty invocation ID")
	}
	if len(payload.InvocationInputs) == 0 {
		return nil, fmt.Errorf("malformed returnControl payload: no invocation inputs")
	}
	if len(payload.InvocationInputs) > 1 {
		logger.Warn("returnControl carries multiple invocation inputs, honoring only the first",
			"invocation_id", invocationID,
			"count", len(payload.InvocationInputs),
		)
	}

	fn, ok := payload.InvocationInputs[0].(*types.InvocationInputMemberMemberFunctionInvocationInput)
	if !ok {
		return nil, fmt.Errorf("malformed returnControl payload: unexpected invocation input type %T", payload.InvocationInputs[0])
	}

	control := &ReturnControl{
		InvocationID: invocationID,
		ActionGroup:  aws.ToString(fn.Value.ActionGroup),
		Function:     aws.ToString(fn.Value.Function),
	}
	for _, p := range fn.Value.Parameters {
		control.Parameters = append(control.Parameters, Parameter{
			Name:  aws.ToString(p.Name),
			Value: aws.ToString(p.Value),
		})
	}
	return control, nil
}
