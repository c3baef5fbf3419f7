// rotorctl is the orbit-tracking control-plane daemon: it wires
// configuration, the NATS bus, Prometheus metrics, and the OrbitTracker
// supervisor together, and serves /metrics over HTTP (SPEC_FULL.md
// SUPPLEMENTED FEATURES 5).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/groundstation/rotorctl/internal/bus"
	"github.com/groundstation/rotorctl/internal/config"
	"github.com/groundstation/rotorctl/internal/ephemeris"
	"github.com/groundstation/rotorctl/internal/observability"
	"github.com/groundstation/rotorctl/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("rotorctl: config: %v", err)
	}

	log.Printf("[rotorctl] connecting to bus at %s:%s", cfg.NATSHost, cfg.NATSPort)
	busCfg := bus.DefaultConfig()
	busCfg.NATSURL = cfg.NATSURL()
	b, err := bus.Connect(busCfg)
	if err != nil {
		log.Fatalf("rotorctl: bus: %v", err)
	}
	defer b.Close()
	observability.UpdateBusConnectionStatus(b.IsConnected())

	provider := ephemeris.NewSyntheticProvider()
	o := supervisor.New(provider, b, cfg.SchedulerEnabled)
	defer o.Close()

	if err := wireBusHandlers(b, o, cfg); err != nil {
		log.Fatalf("rotorctl: wiring bus handlers: %v", err)
	}

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: observability.Handler()}
	go func() {
		log.Printf("[rotorctl] serving metrics on %s", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[rotorctl] metrics server error: %v", err)
		}
	}()

	log.Printf("[rotorctl] ready (scheduler_on=%v)", cfg.SchedulerEnabled)
	waitForShutdown()

	log.Printf("[rotorctl] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[rotorctl] metrics server shutdown: %v", err)
	}
}

// wireBusHandlers subscribes the supervisor to the scheduler.task.start/end
// and tracking.orbit.rpc.<op> subjects of spec.md S6.
func wireBusHandlers(b *bus.Bus, o *supervisor.OrbitTracker, cfg *config.Config) error {
	if err := b.Subscribe("scheduler.task.start", func(ctx context.Context, subject string, payload map[string]any) error {
		return handleSchedulerEvent(ctx, o, "task.start", payload, cfg)
	}); err != nil {
		return err
	}
	if err := b.Subscribe("scheduler.task.end", func(ctx context.Context, subject string, payload map[string]any) error {
		return handleSchedulerEvent(ctx, o, "task.end", payload, cfg)
	}); err != nil {
		return err
	}

	ops := []string{"add_target", "remove_target", "status", "get_target_position"}
	for _, op := range ops {
		op := op
		if err := b.SubscribeRPC("tracking.orbit.rpc."+op, func(ctx context.Context, subject string, payload map[string]any) map[string]any {
			req := requestFromPayload(payload, cfg.DefaultPreAOS)
			resp := o.HandleRPC(ctx, op, req, time.Now())
			return rpcResponseToPayload(resp)
		}); err != nil {
			return err
		}
	}
	return nil
}

func handleSchedulerEvent(ctx context.Context, o *supervisor.OrbitTracker, op string, payload map[string]any, cfg *config.Config) error {
	trackerKind, _ := payload["tracker"].(string)
	req := requestFromPayload(payload, cfg.DefaultPreAOS)
	return o.HandleSchedulerEvent(ctx, trackerKind, op, req)
}

// rpcResponseToPayload round-trips resp through JSON so the wire shape
// matches RPCResponse's tags exactly (omitting "error"/"result" when
// unset) instead of duplicating that shape by hand.
func rpcResponseToPayload(resp supervisor.RPCResponse) map[string]any {
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[rotorctl] marshaling RPC response: %v", err)
		return map[string]any{"correlation_id": resp.CorrelID, "success": false, "error": err.Error()}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("[rotorctl] unmarshaling RPC response: %v", err)
		return map[string]any{"correlation_id": resp.CorrelID, "success": false, "error": err.Error()}
	}
	return payload
}

func requestFromPayload(payload map[string]any, defaultPreAOS time.Duration) supervisor.AddTargetRequest {
	req := supervisor.AddTargetRequest{PreAOSTime: defaultPreAOS}
	if name, ok := payload["target"].(string); ok {
		req.TargetName = name
	}
	if raw, ok := payload["rotators"].([]any); ok {
		for _, r := range raw {
			if s, ok := r.(string); ok {
				req.Rotators = append(req.Rotators, s)
			}
		}
	}
	if secs, ok := payload["preaos_seconds"].(float64); ok && secs > 0 {
		req.PreAOSTime = time.Duration(secs) * time.Second
	}
	return req
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
