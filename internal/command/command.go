// Package command is the single entry point through which remote
// channels change the pump state. Every channel gets the authoritative
// state back, not an echo of its request.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/luki/smartplant/internal/metrics"
)

// ErrBadPayload is returned for a command that does not carry a boolean.
var ErrBadPayload = errors.New("bad power payload")

// Actuator is the controller the ingress drives.
type Actuator interface {
	Set(target bool) error
	Get() bool
}

// Ingress applies power commands.
type Ingress struct {
	act     Actuator
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewIngress returns an ingress driving act.
func NewIngress(act Actuator, log *slog.Logger, m *metrics.Metrics) *Ingress {
	return &Ingress{
		act:     act,
		log:     log.With(slog.String("component", "command")),
		metrics: m,
	}
}

// Handle sets the pump to target and returns the state actually in
// effect afterwards. source names the channel for logs and metrics.
func (in *Ingress) Handle(_ context.Context, source string, target bool) (bool, error) {
	in.log.Info("pump control", slog.String("via", source), slog.Bool("target", target))
	err := in.act.Set(target)
	in.metrics.Command(source, err == nil)
	applied := in.act.Get()
	if err != nil {
		return applied, fmt.Errorf("set pump %v: %w", target, err)
	}
	return applied, nil
}

// Toggle flips the pump.
func (in *Ingress) Toggle(ctx context.Context, source string) (bool, error) {
	return in.Handle(ctx, source, !in.act.Get())
}

// State returns the current pump state.
func (in *Ingress) State() bool {
	return in.act.Get()
}

// Request is the JSON form of a command. ID is optional and is echoed in
// the acknowledgement so a client can match it to its request.
type Request struct {
	Power *bool  `json:"power"`
	ID    string `json:"id,omitempty"`
}

// Ack is the acknowledgement sent back on every channel.
type Ack struct {
	Power bool   `json:"power"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

// ParseRequest accepts a JSON request or a bare true/false, on/off, 1/0.
func ParseRequest(payload []byte) (Request, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if req.Power == nil {
			return Request{}, fmt.Errorf("%w: missing \"power\"", ErrBadPayload)
		}
		return req, nil
	}

	v, err := ParseBool(string(payload))
	if err != nil {
		return Request{}, err
	}
	return Request{Power: &v}, nil
}

// ParseBool parses the plain-text forms of a power value.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(s), `"`)) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrBadPayload, s)
}
