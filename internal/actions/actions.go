// Package actions defines the in-game actions the agent can request.
//
// The registry is a closed, case-sensitive mapping from function name to
// handler, built at construction so that a gap in the action set is
// visible at startup rather than discovered mid-conversation. Execution
// never lets a handler failure escape: every call resolves to a result
// payload plus a response state the agent understands.
package actions

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/nugget/reeve/internal/bedrock"
	"github.com/nugget/reeve/internal/world"
)

// GameWorld is the capability surface actions need from the game. The
// concrete implementation is the world bridge client; tests substitute
// a fake. World state is owned entirely by the other side.
type GameWorld interface {
	SetControlState(ctx context.Context, control string, state bool) error
	Position(ctx context.Context) (world.Vec3, error)
	BlockAt(ctx context.Context, pos world.Vec3) (*world.Block, error)
	Dig(ctx context.Context, pos world.Vec3) error
	Equip(ctx context.Context, item string, destination string) error
	Inventory(ctx context.Context) ([]world.Item, error)
	FindBlocks(ctx context.Context, query world.BlockQuery) ([]world.Block, error)
	PlayerPosition(ctx context.Context, name string) (world.Vec3, error)
	IsRaining(ctx context.Context) (bool, error)
	SetGoal(ctx context.Context, goal world.Vec3, tolerance float64) error
	IsMoving(ctx context.Context) (bool, error)
	Collect(ctx context.Context, block world.Block) error
}

// Handler executes one action. Parameters arrive as a name-keyed map
// (already folded from the agent's ordered parameter list). A returned
// error is recoverable: the executor reports it to the agent as a
// REPROMPT so the agent can retry or rephrase.
type Handler func(ctx context.Context, params map[string]string) (map[string]any, error)

const (
	// moveTolerance is the fixed arrival tolerance for navigation goals.
	moveTolerance = 1.0

	// defaultPollInterval is how often navigation progress is polled.
	defaultPollInterval = 500 * time.Millisecond

	// collectRadius and collectCount bound the log search for
	// action_collect_wood.
	collectRadius = 20.0
	collectCount  = 5
)

// logBlockNames is the fixed set of block types action_collect_wood
// looks for.
var logBlockNames = []string{
	"oak_log",
	"spruce_log",
	"birch_log",
	"jungle_log",
	"acacia_log",
	"dark_oak_log",
}

// Registry maps function names to handlers and executes them against
// the game world.
type Registry struct {
	handlers map[string]Handler
	world    GameWorld
	logger   *slog.Logger

	// pollInterval is overridable for tests; defaults to
	// defaultPollInterval.
	pollInterval time.Duration
}

// NewRegistry creates the registry with all built-in actions registered.
func NewRegistry(w GameWorld, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		handlers:     make(map[string]Handler),
		world:        w,
		logger:       logger.With("component", "actions"),
		pollInterval: defaultPollInterval,
	}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	r.handlers["action_move_to_goal"] = r.handleMoveToGoal
	r.handlers["action_get_distance"] = r.handleGetDistance
	r.handlers["action_dig_area"] = r.handleDigArea
	r.handlers["action_collect_wood"] = r.handleCollectWood
	r.handlers["action_get_time"] = r.handleGetTime
	r.handlers["action_is_raining"] = r.handleIsRaining
	r.handlers["action_get_player_location"] = r.handleGetPlayerLocation
	r.handlers["action_jump"] = r.handleJump
	r.handlers["action_dig"] = r.handleDig
}

// Get retrieves a handler by exact name, or nil when unknown.
func (r *Registry) Get(name string) Handler {
	return r.handlers[name]
}

// Names returns all registered action names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs the named action with the agent-supplied parameters and
// returns the result payload plus the response state to report back.
//
// The ordered parameter list is folded into a name-keyed map (last value
// wins on duplicates). An unknown name is a first-class outcome reported
// as FAILURE; any handler error or panic is converted to a REPROMPT so
// the agent gets a chance to retry. Nothing raises past this boundary.
func (r *Registry) Execute(ctx context.Context, name string, params []bedrock.Parameter) (result map[string]any, state bedrock.ResponseState) {
	args := make(map[string]string, len(params))
	for _, p := range params {
		args[p.Name] = p.Value
	}

	handler := r.handlers[name]
	if handler == nil {
		r.logger.Error("function not found", "function", name)
		return map[string]any{"error": "Function not found"}, bedrock.StateFailure
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("action panicked", "function", name, "panic", rec)
			result = map[string]any{"error": "Something went wrong."}
			state = bedrock.StateReprompt
		}
	}()

	start := time.Now()
	r.logger.Info("executing action", "function", name, "params", args)

	out, err := handler(ctx, args)
	if err != nil {
		r.logger.Error("action failed",
			"function", name,
			"error", err,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		return map[string]any{"error": "Something went wrong."}, bedrock.StateReprompt
	}

	r.logger.Info("action complete",
		"function", name,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, bedrock.StateReprompt
}
