package telemetry

import (
	"testing"

	"github.com/nugget/reeve/internal/bedrock"
	"github.com/nugget/reeve/internal/config"
)

func TestTopics(t *testing.T) {
	p := New(config.MQTTConfig{TopicPrefix: "minecraft"}, "Claude", nil)

	if got := p.availabilityTopic(); got != "minecraft/Claude/availability" {
		t.Errorf("availability topic = %q", got)
	}
	if got := p.eventTopic("chat_received"); got != "minecraft/Claude/event/chat_received" {
		t.Errorf("event topic = %q", got)
	}
	if got := p.stateTopic("uptime"); got != "minecraft/Claude/uptime/state" {
		t.Errorf("state topic = %q", got)
	}
}

func TestTopicsDefaultPrefix(t *testing.T) {
	p := New(config.MQTTConfig{}, "Claude", nil)

	if got := p.availabilityTopic(); got != "reeve/Claude/availability" {
		t.Errorf("availability topic = %q", got)
	}
}

func TestCountersTrackActivity(t *testing.T) {
	// Publisher is never started: event publishing is a no-op without a
	// connection, but counters must still track.
	p := New(config.MQTTConfig{}, "Claude", nil)

	p.ChatReceived("steve")
	p.ChatReceived("alex")
	p.ChatSent()
	p.ActionExecuted("action_get_time", bedrock.StateReprompt)
	p.ActionExecuted("action_fly", bedrock.StateFailure)

	if got := p.chatsReceived.Load(); got != 2 {
		t.Errorf("chatsReceived = %d, want 2", got)
	}
	if got := p.chatsSent.Load(); got != 1 {
		t.Errorf("chatsSent = %d, want 1", got)
	}
	if got := p.actionsRun.Load(); got != 2 {
		t.Errorf("actionsRun = %d, want 2", got)
	}
	if got := p.actionsFailed.Load(); got != 1 {
		t.Errorf("actionsFailed = %d, want 1", got)
	}
}
