package world

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client manages the websocket connection to the mineflayer bridge.
// Outbound capability calls use request-response correlation via a
// pending map; inbound chat events are pushed to a channel.
type Client struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex
	msgID  atomic.Int64

	// Response channels keyed by message ID
	pending   map[int64]chan wsResponse
	pendingMu sync.Mutex

	// Chat events pushed by the bridge
	chats chan ChatEvent

	logger *slog.Logger
}

// wsMessage is the generic bridge message format. Calls carry id, method,
// and params; results echo the id with a result or error; events carry
// an event name and data.
type wsMessage struct {
	ID     int64           `json:"id,omitempty"`
	Type   string          `json:"type"`
	Method string          `json:"method,omitempty"`
	Params any             `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *wsError        `json:"error,omitempty"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("bridge error %s: %s", e.Code, e.Message)
}

// wsResponse wraps the result with error info for the response channel.
type wsResponse struct {
	Result json.RawMessage
	Error  *wsError
}

// NewClient creates a bridge client. Call Connect to establish the
// websocket connection.
func NewClient(url string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:     url,
		pending: make(map[int64]chan wsResponse),
		chats:   make(chan ChatEvent, 64),
		logger:  logger.With("component", "world"),
	}
}

// Connect establishes the websocket connection and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.logger.Info("connecting to mineflayer bridge", "url", c.url)

	dialer := websocket.Dialer{
		ReadBufferSize:  256 * 1024,
		WriteBufferSize: 64 * 1024,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	c.conn = conn

	go c.readLoop(conn)

	c.logger.Info("bridge connected")
	return nil
}

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Reconnect closes the existing connection (if any) and re-establishes
// the websocket. Safe to call from any goroutine.
func (c *Client) Reconnect(ctx context.Context) error {
	c.logger.Info("reconnecting to bridge")

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	return c.Connect(ctx)
}

// Chats returns the channel of inbound chat events.
func (c *Client) Chats() <-chan ChatEvent {
	return c.chats
}

// readLoop dispatches incoming messages: call results go to their
// pending channel, chat events go to the chats channel. Exits when the
// connection dies, failing all in-flight calls.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.logger.Warn("bridge read loop ended", "error", err)
			c.failPending(err)
			return
		}

		switch msg.Type {
		case "result":
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ID]
			if ok {
				delete(c.pending, msg.ID)
			}
			c.pendingMu.Unlock()
			if !ok {
				c.logger.Warn("bridge result for unknown call", "id", msg.ID)
				continue
			}
			ch <- wsResponse{Result: msg.Result, Error: msg.Error}

		case "event":
			if msg.Event != "chat" {
				continue
			}
			var ev ChatEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				c.logger.Warn("malformed chat event", "error", err)
				continue
			}
			select {
			case c.chats <- ev:
			default:
				c.logger.Warn("chat event dropped, channel full", "player", ev.PlayerName)
			}

		default:
			c.logger.Warn("unknown bridge message type", "type", msg.Type)
		}
	}
}

// failPending delivers an error to every in-flight call.
func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- wsResponse{Error: &wsError{Code: "connection_lost", Message: err.Error()}}
		delete(c.pending, id)
	}
}

// call performs one bridge RPC and unmarshals the result into out (when
// out is non-nil).
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	id := c.msgID.Add(1)

	ch := make(chan wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	var err error
	if conn == nil {
		err = fmt.Errorf("bridge not connected")
	} else {
		err = conn.WriteJSON(wsMessage{ID: id, Type: "call", Method: method, Params: params})
	}
	c.connMu.Unlock()
	if err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("bridge call %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("bridge call %s: %w", method, resp.Error)
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return fmt.Errorf("bridge call %s: %w", method, ctx.Err())
	}
}

// Chat sends a chat message as the bot.
func (c *Client) Chat(ctx context.Context, text string) error {
	return c.call(ctx, "chat", map[string]any{"text": text}, nil)
}

// SetControlState presses or releases a movement control (e.g. "jump").
func (c *Client) SetControlState(ctx context.Context, control string, state bool) error {
	return c.call(ctx, "setControlState", map[string]any{"control": control, "state": state}, nil)
}

// Position returns the bot's current position.
func (c *Client) Position(ctx context.Context) (Vec3, error) {
	var pos Vec3
	err := c.call(ctx, "position", nil, &pos)
	return pos, err
}

// BlockAt returns the block at the given position, or nil for air.
func (c *Client) BlockAt(ctx context.Context, pos Vec3) (*Block, error) {
	var block *Block
	if err := c.call(ctx, "blockAt", pos, &block); err != nil {
		return nil, err
	}
	return block, nil
}

// Dig digs the block at the given position and blocks until done.
func (c *Client) Dig(ctx context.Context, pos Vec3) error {
	return c.call(ctx, "dig", pos, nil)
}

// Equip equips the named inventory item in the given destination slot
// ("hand", "head", etc.).
func (c *Client) Equip(ctx context.Context, item string, destination string) error {
	return c.call(ctx, "equip", map[string]any{"item": item, "destination": destination}, nil)
}

// Inventory returns the bot's current inventory items.
func (c *Client) Inventory(ctx context.Context) ([]Item, error) {
	var items []Item
	err := c.call(ctx, "inventory", nil, &items)
	return items, err
}

// FindBlocks returns up to query.Count blocks matching the query near
// the bot.
func (c *Client) FindBlocks(ctx context.Context, query BlockQuery) ([]Block, error) {
	var blocks []Block
	err := c.call(ctx, "findBlocks", query, &blocks)
	return blocks, err
}

// PlayerPosition returns a named player's entity position. The bridge
// reports an error when the player is unknown or out of view.
func (c *Client) PlayerPosition(ctx context.Context, name string) (Vec3, error) {
	var pos Vec3
	err := c.call(ctx, "playerPosition", map[string]any{"name": name}, &pos)
	return pos, err
}

// IsRaining reports whether it is currently raining in the world.
func (c *Client) IsRaining(ctx context.Context) (bool, error) {
	var raining bool
	err := c.call(ctx, "isRaining", nil, &raining)
	return raining, err
}

// SetGoal submits a pathfinder navigation goal with an arrival tolerance.
func (c *Client) SetGoal(ctx context.Context, goal Vec3, tolerance float64) error {
	return c.call(ctx, "setGoal", map[string]any{
		"x": goal.X, "y": goal.Y, "z": goal.Z, "tolerance": tolerance,
	}, nil)
}

// IsMoving reports whether the pathfinder is still navigating.
func (c *Client) IsMoving(ctx context.Context) (bool, error) {
	var moving bool
	err := c.call(ctx, "isMoving", nil, &moving)
	return moving, err
}

// Collect navigates to and collects the given block.
func (c *Client) Collect(ctx context.Context, block Block) error {
	return c.call(ctx, "collectBlock", block, nil)
}
