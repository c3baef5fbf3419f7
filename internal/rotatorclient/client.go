// Package rotatorclient is a thin RPC client wrapper for the rotator
// device driver's RPC surface (spec.md S6), consumer-side only — it never
// closes the servo loop itself, that is the driver's job (spec.md S1
// Non-goals). Grounded one-to-one on original_source/gs/hardware/interface.py.
package rotatorclient

import (
	"context"
	"fmt"
	"time"
)

// Requester is the minimal bus surface the client needs (internal/bus.Bus
// satisfies this).
type Requester interface {
	Request(ctx context.Context, subject string, payload map[string]any) (map[string]any, error)
}

const (
	calibrateTimeout     = 15 * time.Second
	resetPositionTimeout = 5 * time.Second
	defaultTimeout       = 10 * time.Second
)

// Client talks to one rotator driver, identified by its bus subject
// prefix (e.g. "rotator.myrotor").
type Client struct {
	bus    Requester
	prefix string
}

// New returns a Client for the driver addressed at prefix.
func New(bus Requester, prefix string) *Client {
	return &Client{bus: bus, prefix: prefix}
}

func (c *Client) rpc(ctx context.Context, timeout time.Duration, op string, payload map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	subject := fmt.Sprintf("%s.rpc.%s", c.prefix, op)
	reply, err := c.bus.Request(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("rotatorclient: %s: %w", op, err)
	}
	return reply, nil
}

// Status returns the rotator's current status.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return c.rpc(ctx, defaultTimeout, "status", nil)
}

// Rotate commands the rotator to az/el. shortest requests the shortest
// angular path.
func (c *Client) Rotate(ctx context.Context, az, el float64, shortest bool) error {
	_, err := c.rpc(ctx, defaultTimeout, "rotate", map[string]any{
		"az": az, "el": el, "shortest": shortest,
	})
	return err
}

// Calibrate moves the rotator to az/el ignoring min/max bounds, then sets
// that position as the new origin. Uses the 15s timeout of the original
// interface since calibration motion can be slow.
func (c *Client) Calibrate(ctx context.Context, az, el float64) error {
	_, err := c.rpc(ctx, calibrateTimeout, "calibrate", map[string]any{
		"az": az, "el": el, "force": true, "cal": true,
	})
	return err
}

// ResetPosition resets the rotator's reported position to az/el without
// moving it, using the original's 5s timeout.
func (c *Client) ResetPosition(ctx context.Context, az, el float64) error {
	_, err := c.rpc(ctx, resetPositionTimeout, "reset_position", map[string]any{
		"az": az, "el": el,
	})
	return err
}

// Stop halts the rotator immediately.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.rpc(ctx, defaultTimeout, "stop", nil)
	return err
}

// SetTracking enables or disables the driver's automatic tracking mode.
func (c *Client) SetTracking(ctx context.Context, enabled bool) error {
	mode := "manual"
	if enabled {
		mode = "automatic"
	}
	_, err := c.rpc(ctx, defaultTimeout, "tracking", map[string]any{"mode": mode})
	return err
}

// GetPositionRange returns the allowed az/el position range.
func (c *Client) GetPositionRange(ctx context.Context) (map[string]any, error) {
	return c.rpc(ctx, defaultTimeout, "get_position_range", nil)
}

// SetPositionRange sets the allowed az/el position range.
func (c *Client) SetPositionRange(ctx context.Context, azMin, azMax, elMin, elMax float64) error {
	_, err := c.rpc(ctx, defaultTimeout, "set_position_range", map[string]any{
		"az_min": azMin, "az_max": azMax, "el_min": elMin, "el_max": elMax,
	})
	return err
}

// GetDutyCycleRange returns the allowed motor duty-cycle range.
func (c *Client) GetDutyCycleRange(ctx context.Context) (map[string]any, error) {
	return c.rpc(ctx, defaultTimeout, "get_dutycycle_range", nil)
}

// SetDutyCycleRange sets the allowed motor duty-cycle range.
func (c *Client) SetDutyCycleRange(ctx context.Context, azMin, azMax, elMin, elMax float64) error {
	_, err := c.rpc(ctx, defaultTimeout, "set_dutycycle_range", map[string]any{
		"az_min": azMin, "az_max": azMax, "el_min": elMin, "el_max": elMax,
	})
	return err
}
