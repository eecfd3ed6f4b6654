package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nugget/reeve/internal/world"
)

// handleMoveToGoal navigates to the given coordinates and blocks until
// the pathfinder reports arrival. Blocking here is deliberate: it keeps
// the turn from issuing overlapping movement commands.
func (r *Registry) handleMoveToGoal(ctx context.Context, params map[string]string) (map[string]any, error) {
	x, err := parseFloatParam(params, "x")
	if err != nil {
		return nil, err
	}
	y, err := parseFloatParam(params, "y")
	if err != nil {
		return nil, err
	}
	z, err := parseFloatParam(params, "z")
	if err != nil {
		return nil, err
	}

	goal := world.Vec3{X: x, Y: y, Z: z}
	if err := r.world.SetGoal(ctx, goal, moveTolerance); err != nil {
		return nil, fmt.Errorf("set goal: %w", err)
	}

	if err := r.waitForArrival(ctx); err != nil {
		return nil, err
	}

	return map[string]any{"message": "Done"}, nil
}

// waitForArrival polls the pathfinder on a short fixed interval until
// it stops moving.
func (r *Registry) waitForArrival(ctx context.Context) error {
	for {
		moving, err := r.world.IsMoving(ctx)
		if err != nil {
			return fmt.Errorf("poll movement: %w", err)
		}
		if !moving {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// handleGetDistance computes the Euclidean distance between two points.
// Each point is a JSON object {"x":..,"y":..,"z":..} or array [x,y,z];
// single-quoted JSON-like input is tolerated.
func (r *Registry) handleGetDistance(ctx context.Context, params map[string]string) (map[string]any, error) {
	a, err := parsePoint(params["point1"])
	if err != nil {
		return nil, fmt.Errorf("point1: %w", err)
	}
	b, err := parsePoint(params["point2"])
	if err != nil {
		return nil, fmt.Errorf("point2: %w", err)
	}

	return map[string]any{"distance": a.DistanceTo(b)}, nil
}

// parsePoint parses a point from agent-supplied JSON. Agents routinely
// emit single-quoted pseudo-JSON, so quotes are normalized before
// parsing.
func parsePoint(s string) (world.Vec3, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, "'", `"`))
	if s == "" {
		return world.Vec3{}, fmt.Errorf("empty point")
	}

	if strings.HasPrefix(s, "[") {
		var arr []float64
		if err := json.Unmarshal([]byte(s), &arr); err != nil {
			return world.Vec3{}, fmt.Errorf("parse point array: %w", err)
		}
		if len(arr) != 3 {
			return world.Vec3{}, fmt.Errorf("point array has %d components, want 3", len(arr))
		}
		return world.Vec3{X: arr[0], Y: arr[1], Z: arr[2]}, nil
	}

	var pos world.Vec3
	if err := json.Unmarshal([]byte(s), &pos); err != nil {
		return world.Vec3{}, fmt.Errorf("parse point object: %w", err)
	}
	return pos, nil
}

// handleDigArea digs a width × width area, depth blocks deep, beneath
// the bot's current position. A digging tool is selected from inventory
// by name substring before the first dig.
func (r *Registry) handleDigArea(ctx context.Context, params map[string]string) (map[string]any, error) {
	width, err := parseIntParam(params, "width")
	if err != nil {
		return nil, err
	}
	depth, err := parseIntParam(params, "depth")
	if err != nil {
		return nil, err
	}
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("width and depth must be positive, got %d and %d", width, depth)
	}

	if err := r.equipTool(ctx, "shovel"); err != nil {
		return nil, err
	}

	origin, err := r.world.Position(ctx)
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}

	dug := 0
	for dy := 0; dy < depth; dy++ {
		for dx := 0; dx < width; dx++ {
			for dz := 0; dz < width; dz++ {
				target := origin.Add(world.Vec3{X: float64(dx), Y: float64(-(dy + 1)), Z: float64(dz)})

				block, err := r.world.BlockAt(ctx, target)
				if err != nil {
					return nil, fmt.Errorf("query block at %v: %w", target, err)
				}
				if block == nil || block.Name == "air" {
					continue
				}

				if err := r.world.Dig(ctx, target); err != nil {
					return nil, fmt.Errorf("dig %s at %v: %w", block.Name, target, err)
				}
				dug++
			}
		}
	}

	return map[string]any{"message": fmt.Sprintf("Dug %d blocks", dug)}, nil
}

// handleCollectWood finds nearby log blocks and collects them one at a
// time, navigating to each. Per-block failures are logged and skipped
// so one stubborn block doesn't abort the batch.
func (r *Registry) handleCollectWood(ctx context.Context, params map[string]string) (map[string]any, error) {
	// An axe speeds things up but its absence shouldn't stop the harvest.
	if err := r.equipTool(ctx, "axe"); err != nil {
		r.logger.Warn("collecting without an axe", "error", err)
	}

	blocks, err := r.world.FindBlocks(ctx, world.BlockQuery{
		Names:       logBlockNames,
		MaxDistance: collectRadius,
		Count:       collectCount,
	})
	if err != nil {
		return nil, fmt.Errorf("find logs: %w", err)
	}
	if len(blocks) == 0 {
		return map[string]any{"message": "No logs found nearby"}, nil
	}

	collected := 0
	for _, block := range blocks {
		if err := r.world.SetGoal(ctx, block.Position, moveTolerance); err != nil {
			r.logger.Warn("navigation to log failed", "block", block.Name, "position", block.Position, "error", err)
			continue
		}
		if err := r.waitForArrival(ctx); err != nil {
			r.logger.Warn("never arrived at log", "block", block.Name, "position", block.Position, "error", err)
			continue
		}
		if err := r.world.Collect(ctx, block); err != nil {
			r.logger.Warn("collect failed", "block", block.Name, "position", block.Position, "error", err)
			continue
		}
		collected++
	}

	return map[string]any{"message": fmt.Sprintf("Collected %d logs", collected)}, nil
}

// equipTool equips the first inventory item whose name contains the
// given substring.
func (r *Registry) equipTool(ctx context.Context, substring string) error {
	items, err := r.world.Inventory(ctx)
	if err != nil {
		return fmt.Errorf("query inventory: %w", err)
	}

	for _, item := range items {
		if strings.Contains(item.Name, substring) {
			if err := r.world.Equip(ctx, item.Name, "hand"); err != nil {
				return fmt.Errorf("equip %s: %w", item.Name, err)
			}
			return nil
		}
	}
	return fmt.Errorf("no %s in inventory", substring)
}

// handleGetTime returns the current wall-clock time.
func (r *Registry) handleGetTime(ctx context.Context, params map[string]string) (map[string]any, error) {
	return map[string]any{"time": time.Now().Format("15:04:05")}, nil
}

// handleIsRaining reports the world's current rain state.
func (r *Registry) handleIsRaining(ctx context.Context, params map[string]string) (map[string]any, error) {
	raining, err := r.world.IsRaining(ctx)
	if err != nil {
		return nil, fmt.Errorf("query weather: %w", err)
	}
	return map[string]any{"raining": raining}, nil
}

// handleGetPlayerLocation looks up a named player's entity position.
func (r *Registry) handleGetPlayerLocation(ctx context.Context, params map[string]string) (map[string]any, error) {
	name := params["player_name"]
	if name == "" {
		return nil, fmt.Errorf("player_name is required")
	}

	pos, err := r.world.PlayerPosition(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("player %s: %w", name, err)
	}

	return map[string]any{"x": pos.X, "y": pos.Y, "z": pos.Z}, nil
}

// handleJump presses the jump control for one second.
func (r *Registry) handleJump(ctx context.Context, params map[string]string) (map[string]any, error) {
	if err := r.world.SetControlState(ctx, "jump", true); err != nil {
		return nil, fmt.Errorf("press jump: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(time.Second):
	}

	if err := r.world.SetControlState(ctx, "jump", false); err != nil {
		return nil, fmt.Errorf("release jump: %w", err)
	}

	return map[string]any{"message": "Done"}, nil
}

// handleDig digs the block directly below the bot.
func (r *Registry) handleDig(ctx context.Context, params map[string]string) (map[string]any, error) {
	pos, err := r.world.Position(ctx)
	if err != nil {
		return nil, fmt.Errorf("query position: %w", err)
	}

	target := pos.Add(world.Vec3{Y: -1})
	block, err := r.world.BlockAt(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("query block below: %w", err)
	}
	if block == nil || block.Name == "air" {
		return map[string]any{"message": "Nothing to dig below"}, nil
	}

	if err := r.world.Dig(ctx, target); err != nil {
		return nil, fmt.Errorf("dig %s: %w", block.Name, err)
	}

	return map[string]any{"message": "Done"}, nil
}

func parseFloatParam(params map[string]string, name string) (float64, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func parseIntParam(params map[string]string, name string) (int, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
