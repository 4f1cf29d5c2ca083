// Package dispatch executes mutating session commands against the remote
// authority with per-attempt idempotency keys and classification-driven
// fallback from the unified protocol to the legacy per-action protocol.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/initiative.watch/internal/gateway"
	apperrors "github.com/louisbranch/initiative.watch/internal/platform/errors"
	"github.com/louisbranch/initiative.watch/internal/platform/id"
)

// Mode selects the wire protocol for commands. It is chosen once per
// deployment and held for the process lifetime.
type Mode string

const (
	// ModeUnified always uses the unified action endpoint.
	ModeUnified Mode = "unified"
	// ModeLegacy always uses the action-specific legacy endpoints.
	ModeLegacy Mode = "legacy"
	// ModeAuto tries the unified endpoint first and falls back to the
	// legacy endpoint on routing, server, or transport failures.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode string from configuration.
func ParseMode(value string) (Mode, error) {
	switch Mode(strings.TrimSpace(strings.ToLower(value))) {
	case ModeUnified:
		return ModeUnified, nil
	case ModeLegacy:
		return ModeLegacy, nil
	case ModeAuto, "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("invalid dispatch mode %q (want unified, legacy, or auto)", value)
}

// Authority is the subset of the gateway client the dispatcher needs.
type Authority interface {
	ExecuteUnifiedAction(ctx context.Context, sessionID string, action gateway.UnifiedAction) (gateway.ActionResult, error)
	ExecuteLegacyAction(ctx context.Context, sessionID string, actionType gateway.ActionType, payload map[string]any) (gateway.ActionResult, error)
}

// Dispatcher issues commands for one session.
type Dispatcher struct {
	authority Authority
	sessionID string
	mode      Mode
	tracer    trace.Tracer

	// notify surfaces the one-time fallback notice. Non-blocking from the
	// caller's perspective; may be nil.
	notify func(message string)
	// onSuccess runs after any successful dispatch, detached from the
	// caller. The tracker uses it to refetch the event journal.
	onSuccess func()

	fallbackOnce sync.Once
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier sets the sink for the one-time legacy-fallback notice.
func WithNotifier(notify func(message string)) Option {
	return func(d *Dispatcher) { d.notify = notify }
}

// WithSuccessHook sets the hook run after every successful dispatch.
func WithSuccessHook(hook func()) Option {
	return func(d *Dispatcher) { d.onSuccess = hook }
}

// New creates a dispatcher for one session.
func New(authority Authority, sessionID string, mode Mode, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		authority: authority,
		sessionID: sessionID,
		mode:      mode,
		tracer:    otel.Tracer("initiative.watch/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the protocol mode the dispatcher was created with.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Dispatch executes one logical command and returns the action result for
// optimistic updates.
//
// Every call is assigned a fresh idempotency key before transmission. In
// auto mode a unified-endpoint failure classified as routing, server, or
// transport is transparently retried once through the legacy endpoint;
// authorization and validation failures propagate unchanged, since they are
// properties of the request, not the transport.
func (d *Dispatcher) Dispatch(ctx context.Context, actionType gateway.ActionType, payload map[string]any) (gateway.ActionResult, error) {
	key, err := id.NewIdempotencyKey()
	if err != nil {
		return gateway.ActionResult{}, fmt.Errorf("generate idempotency key: %w", err)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("session.id", d.sessionID),
			attribute.String("action.type", string(actionType)),
			attribute.String("dispatch.mode", string(d.mode)),
		))
	defer span.End()

	result, err := d.execute(ctx, span, key, actionType, payload)
	if err != nil {
		return gateway.ActionResult{}, err
	}

	if d.onSuccess != nil {
		// Fire-and-forget journal refetch so the action shows up without
		// waiting for the next poll tick. The caller does not wait on it.
		go d.onSuccess()
	}
	return result, nil
}

func (d *Dispatcher) execute(ctx context.Context, span trace.Span, key string, actionType gateway.ActionType, payload map[string]any) (gateway.ActionResult, error) {
	if d.mode == ModeLegacy {
		return d.authority.ExecuteLegacyAction(ctx, d.sessionID, actionType, payload)
	}

	result, err := d.authority.ExecuteUnifiedAction(ctx, d.sessionID, gateway.UnifiedAction{
		IdempotencyKey: key,
		ActionType:     actionType,
		Payload:        payload,
	})
	if err == nil {
		return result, nil
	}
	if d.mode != ModeAuto || !RetryableAsLegacy(err) {
		return gateway.ActionResult{}, err
	}

	// One fallback attempt per logical command, no further chain. The
	// legacy endpoint accepts no idempotency key, so a command that
	// actually succeeded server-side before the fallback can be applied
	// twice; that risk is accepted.
	span.SetAttributes(attribute.Bool("dispatch.fallback", true))
	d.fallbackOnce.Do(func() {
		log.Printf("unified action endpoint unavailable, falling back to legacy protocol: %v", err)
		if d.notify != nil {
			d.notify("the server does not support the unified command protocol; using the legacy protocol for this session")
		}
	})
	return d.authority.ExecuteLegacyAction(ctx, d.sessionID, actionType, payload)
}

// RetryableAsLegacy classifies a unified-endpoint failure. Routing failures
// (not-found, method-not-allowed), server failures (5xx, not-implemented,
// unavailable), and transport failures are retryable through the legacy
// protocol; authorization and validation failures are not.
func RetryableAsLegacy(err error) bool {
	if status := gateway.HTTPStatusOf(err); status != 0 {
		switch {
		case status == 404 || status == 405:
			return true
		case status >= 500:
			return true
		default:
			return false
		}
	}
	switch apperrors.CodeOf(err) {
	case apperrors.CodeNetworkFailure, apperrors.CodeServerFailure, apperrors.CodeRoutingFailure:
		return true
	}
	return false
}
