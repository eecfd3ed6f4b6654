// Package telemetry publishes bot activity to an MQTT broker so
// operators can watch the agent from the outside.
package telemetry

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/nugget/reeve/internal/bedrock"
	"github.com/nugget/reeve/internal/config"
)

const stateInterval = 60 * time.Second

// Publisher manages the MQTT connection and pushes activity events and
// periodic counter states to the broker. All publish methods are
// fire-and-forget: telemetry must never block or fail a turn.
type Publisher struct {
	cfg     config.MQTTConfig
	botName string
	logger  *slog.Logger
	cm      *autopaho.ConnectionManager

	started       time.Time
	chatsReceived atomic.Int64
	chatsSent     atomic.Int64
	actionsRun    atomic.Int64
	actionsFailed atomic.Int64
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop.
func New(cfg config.MQTTConfig, botName string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cfg:     cfg,
		botName: botName,
		logger:  logger.With("component", "telemetry"),
		started: time.Now(),
	}
}

// Start connects to the MQTT broker and begins the periodic publish
// loop. It blocks until ctx is cancelled. The broker holds an "offline"
// will message so availability flips even on an unclean exit.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := p.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "reeve-" + p.botName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes an "offline" availability message before closing the
// MQTT connection.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// --- Topic helpers ---

func (p *Publisher) baseTopic() string {
	prefix := p.cfg.TopicPrefix
	if prefix == "" {
		prefix = "reeve"
	}
	return prefix + "/" + p.botName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) eventTopic(event string) string {
	return p.baseTopic() + "/event/" + event
}

func (p *Publisher) stateTopic(entity string) string {
	return p.baseTopic() + "/" + entity + "/state"
}

// --- Activity events ---

// ChatReceived notes an inbound player chat message.
func (p *Publisher) ChatReceived(player string) {
	p.chatsReceived.Add(1)
	p.publishEvent("chat_received", map[string]any{
		"player": player,
		"time":   time.Now().Format(time.RFC3339),
	})
}

// ChatSent notes an outbound chat message from the bot.
func (p *Publisher) ChatSent() {
	p.chatsSent.Add(1)
	p.publishEvent("chat_sent", map[string]any{
		"time": time.Now().Format(time.RFC3339),
	})
}

// ActionExecuted notes one dispatched tool call and its outcome state.
func (p *Publisher) ActionExecuted(function string, state bedrock.ResponseState) {
	p.actionsRun.Add(1)
	if state == bedrock.StateFailure {
		p.actionsFailed.Add(1)
	}
	p.publishEvent("action", map[string]any{
		"function": function,
		"state":    string(state),
		"time":     time.Now().Format(time.RFC3339),
	})
}

func (p *Publisher) publishEvent(event string, payload map[string]any) {
	if p.cm == nil {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("mqtt marshal event payload", "event", event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   p.eventTopic(event),
		Payload: body,
		QoS:     0,
	}); err != nil {
		p.logger.Debug("mqtt event publish failed", "event", event, "error", err)
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

// --- Periodic state loop ---

func (p *Publisher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(stateInterval)
	defer ticker.Stop()

	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

func (p *Publisher) publishStates(ctx context.Context) {
	if p.cm == nil {
		return
	}

	states := map[string]string{
		"uptime":         time.Since(p.started).Truncate(time.Second).String(),
		"chats_received": strconv.FormatInt(p.chatsReceived.Load(), 10),
		"chats_sent":     strconv.FormatInt(p.chatsSent.Load(), 10),
		"actions_run":    strconv.FormatInt(p.actionsRun.Load(), 10),
		"actions_failed": strconv.FormatInt(p.actionsFailed.Load(), 10),
	}

	for entity, value := range states {
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   p.stateTopic(entity),
			Payload: []byte(value),
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.logger.Debug("mqtt state publish failed", "entity", entity, "error", err)
		}
	}

	p.logger.Debug("mqtt states published", "entities", len(states))
}
