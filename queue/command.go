package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/XANi/hassbridge/hass"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type commandKind int

const (
	commandState commandKind = iota
	commandPosition
	commandSpeed
	commandDirection
)

type command struct {
	entityID string
	platform hass.Platform
	kind     commandKind
}

// commandsFor maps every command topic advertised in d to its command.
func commandsFor(d Discovery, e hass.Entity) map[string]command {
	out := map[string]command{}
	add := func(topic string, kind commandKind) {
		if topic != "" {
			out[topic] = command{entityID: e.UniqueID(), platform: e.Platform(), kind: kind}
		}
	}
	add(d.CommandTopic, commandState)
	add(d.SetPositionTopic, commandPosition)
	add(d.PresetModeCommandTopic, commandSpeed)
	add(d.DirectionCommandTopic, commandDirection)
	return out
}

// serviceCall translates an MQTT command payload into a hub service call.
func (c command) serviceCall(payload string) (hass.ServiceCall, error) {
	payload = strings.TrimSpace(payload)
	switch c.kind {
	case commandPosition:
		pos, err := strconv.Atoi(payload)
		if err != nil {
			return hass.ServiceCall{}, fmt.Errorf("bad position [%s]: %w", payload, err)
		}
		return hass.ServiceCall{Service: hass.ServiceSetCoverPosition, Position: &pos}, nil
	case commandSpeed:
		return hass.ServiceCall{Service: hass.ServiceSetSpeed, Speed: strings.ToLower(payload)}, nil
	case commandDirection:
		return hass.ServiceCall{Service: hass.ServiceSetDirection, Direction: strings.ToLower(payload)}, nil
	}
	if c.platform == hass.PlatformCover {
		switch strings.ToUpper(payload) {
		case PayloadOpen:
			return hass.ServiceCall{Service: hass.ServiceOpenCover}, nil
		case PayloadClose:
			return hass.ServiceCall{Service: hass.ServiceCloseCover}, nil
		case PayloadStop:
			return hass.ServiceCall{Service: hass.ServiceStopCover}, nil
		}
		return hass.ServiceCall{}, fmt.Errorf("unknown cover command [%s]", payload)
	}
	switch strings.ToLower(payload) {
	case PayloadOn:
		return hass.ServiceCall{Service: hass.ServiceTurnOn}, nil
	case PayloadOff:
		return hass.ServiceCall{Service: hass.ServiceTurnOff}, nil
	}
	return hass.ServiceCall{}, fmt.Errorf("unknown command [%s]", payload)
}

// HandleCommand runs the service call published on topic.
func (q *Queue) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	q.RLock()
	cmd, ok := q.commands[topic]
	q.RUnlock()
	if !ok {
		return fmt.Errorf("no command on %s", topic)
	}
	call, err := cmd.serviceCall(string(payload))
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.entityID, err)
	}
	q.log.Debugf("%s: %s %+v", topic, cmd.entityID, call)
	return q.hub.CallService(ctx, cmd.entityID, call)
}

// onMessage hands commands off so slow SDK calls do not stall the MQTT client.
func (q *Queue) onMessage(_ mqtt.Client, m mqtt.Message) {
	topic := m.Topic()
	payload := append([]byte(nil), m.Payload()...)
	q.hub.AddJob(func(ctx context.Context) {
		if err := q.HandleCommand(ctx, topic, payload); err != nil {
			q.log.Warnf("command on %s [%s] failed: %s", topic, string(payload), err)
		}
	})
}
