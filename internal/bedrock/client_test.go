package bedrock

import (
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConvertReturnControl(t *testing.T) {
	payload := types.ReturnControlPayload{
		InvocationId: aws.String("inv-42"),
		InvocationInputs: []types.InvocationInputMember{
			&types.InvocationInputMemberMemberFunctionInvocationInput{
				Value: types.FunctionInvocationInput{
					ActionGroup: aws.String("actions"),
					Function:    aws.String("action_move_to_goal"),
					Parameters: []types.FunctionParameter{
						{Name: aws.String("x"), Value: aws.String("10")},
						{Name: aws.String("y"), Value: aws.String("64")},
						{Name: aws.String("z"), Value: aws.String("-5")},
					},
				},
			},
		},
	}

	control, err := convertReturnControl(payload, discard())
	if err != nil {
		t.Fatalf("convertReturnControl: %v", err)
	}

	if control.InvocationID != "inv-42" {
		t.Errorf("InvocationID = %q, want inv-42", control.InvocationID)
	}
	if control.ActionGroup != "actions" {
		t.Errorf("ActionGroup = %q, want actions", control.ActionGroup)
	}
	if control.Function != "action_move_to_goal" {
		t.Errorf("Function = %q, want action_move_to_goal", control.Function)
	}
	if len(control.Parameters) != 3 {
		t.Fatalf("got %d parameters, want 3", len(control.Parameters))
	}
	// Parameter order must survive conversion.
	wantNames := []string{"x", "y", "z"}
	for i, name := range wantNames {
		if control.Parameters[i].Name != name {
			t.Errorf("Parameters[%d].Name = %q, want %q", i, control.Parameters[i].Name, name)
		}
	}
}

func TestConvertReturnControlEmptyInvocationID(t *testing.T) {
	payload := types.ReturnControlPayload{
		InvocationInputs: []types.InvocationInputMember{
			&types.InvocationInputMemberMemberFunctionInvocationInput{},
		},
	}

	if _, err := convertReturnControl(payload, discard()); err == nil {
		t.Error("expected error for empty invocation ID")
	}
}

func TestConvertReturnControlNoInputs(t *testing.T) {
	payload := types.ReturnControlPayload{
		InvocationId: aws.String("inv-42"),
	}

	if _, err := convertReturnControl(payload, discard()); err == nil {
		t.Error("expected error for missing invocation inputs")
	}
}

func TestConvertReturnControlHonorsFirstInputOnly(t *testing.T) {
	payload := types.ReturnControlPayload{
		InvocationId: aws.String("inv-42"),
		InvocationInputs: []types.InvocationInputMember{
			&types.InvocationInputMemberMemberFunctionInvocationInput{
				Value: types.FunctionInvocationInput{
					Function: aws.String("action_get_time"),
				},
			},
			&types.InvocationInputMemberMemberFunctionInvocationInput{
				Value: types.FunctionInvocationInput{
					Function: aws.String("action_jump"),
				},
			},
		},
	}

	control, err := convertReturnControl(payload, discard())
	if err != nil {
		t.Fatalf("convertReturnControl: %v", err)
	}
	if control.Function != "action_get_time" {
		t.Errorf("Function = %q, want the first input's function", control.Function)
	}
}

func TestConvertSessionState(t *testing.T) {
	state := convertSessionState(&SessionState{
		InvocationID: "inv-7",
		Results: []InvocationResult{
			{
				ActionGroup: "actions",
				Function:    "action_is_raining",
				Body:        `{"raining":false}`,
				State:       StateReprompt,
			},
		},
	})

	if aws.ToString(state.InvocationId) != "inv-7" {
		t.Errorf("InvocationId = %q, want inv-7", aws.ToString(state.InvocationId))
	}
	if len(state.ReturnControlInvocationResults) != 1 {
		t.Fatalf("got %d results, want 1", len(state.ReturnControlInvocationResults))
	}

	member, ok := state.ReturnControlInvocationResults[0].(*types.InvocationResultMemberMemberFunctionResult)
	if !ok {
		t.Fatalf("result member type = %T, want function result", state.ReturnControlInvocationResults[0])
	}
	fr := member.Value
	if aws.ToString(fr.ActionGroup) != "actions" {
		t.Errorf("ActionGroup = %q, want actions", aws.ToString(fr.ActionGroup))
	}
	if aws.ToString(fr.Function) != "action_is_raining" {
		t.Errorf("Function = %q, want action_is_raining", aws.ToString(fr.Function))
	}
	if fr.ResponseState != types.ResponseState("REPROMPT") {
		t.Errorf("ResponseState = %q, want REPROMPT", fr.ResponseState)
	}
	body, ok := fr.ResponseBody["TEXT"]
	if !ok {
		t.Fatal("ResponseBody has no TEXT entry")
	}
	if aws.ToString(body.Body) != `{"raining":false}` {
		t.Errorf("Body = %q, want the JSON result payload", aws.ToString(body.Body))
	}
}
