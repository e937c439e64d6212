package tokengate

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalflows "github.com/MrEthical07/tokengate/internal/flows"
)

// Authorize is the gate decision for one request. authorization is the raw
// Authorization header value. Public routes return (nil, nil); every other path
// returns either the caller's identity or one of ErrNoTokenProvided, ErrTokenRevoked,
// ErrTokenExpired, ErrInvalidToken, ErrInsufficientRole or ErrStoreUnavailable. A path
// with dot segments, empty segments or a trailing slash yields ErrInvalidRequest.
//
// Gate latency is measured with the monotonic wall clock; the clock set with
// [Builder.WithClock] drives token expiry only.
//
// Authorize never writes to a store.
func (e *Engine) Authorize(ctx context.Context, path, authorization string) (*Identity, error) {
	if e == nil || e.revocations == nil || e.policy == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	res := internalflows.RunAuthorize(ctx, path, authorization, e.flows.Authorize)
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricGateLatency, time.Since(start))
	}

	if res.Failure == internalflows.GateFailureNone {
		if res.Public {
			e.metricInc(MetricGatePublic)
			return nil, nil
		}
		e.metricInc(MetricGateAllowed)
		return &Identity{
			OwnerID:   res.Claims.OwnerID,
			Email:     res.Claims.Email,
			Username:  res.Claims.Username,
			Role:      res.Claims.Role,
			TokenID:   res.Claims.ID,
			ExpiresAt: res.Claims.ExpiresAt,
		}, nil
	}

	var (
		err     error
		ownerID string
	)
	switch res.Failure {
	case internalflows.GateFailureNoToken:
		e.metricInc(MetricGateNoToken)
		err = ErrNoTokenProvided
	case internalflows.GateFailureRevoked:
		e.metricInc(MetricGateRevoked)
		err = ErrTokenRevoked
	case internalflows.GateFailureStore:
		e.metricInc(MetricGateStoreFailure)
		e.logger.Error("revocation lookup failed", "op", "authorize", "path", path, "err", res.Err)
		err = storeError(res.Err)
	case internalflows.GateFailureExpired:
		e.metricInc(MetricGateExpired)
		err = ErrTokenExpired
	case internalflows.GateFailureInvalid:
		e.metricInc(MetricGateInvalid)
		err = ErrInvalidToken
	case internalflows.GateFailurePath:
		e.metricInc(MetricGateInvalid)
		err = fmt.Errorf("%w: path is not canonical", ErrInvalidRequest)
	case internalflows.GateFailureRole:
		e.metricInc(MetricGateForbidden)
		ownerID = res.Claims.OwnerID
		err = fmt.Errorf("%w: requires one of [%s]", ErrInsufficientRole, strings.Join(res.Required, ", "))
	default:
		err = ErrInvalidToken
	}

	e.emitAudit(ctx, auditEventGateDenied, false, ownerID, path, err, func() map[string]string {
		return map[string]string{"state": res.State.String()}
	})
	return nil, err
}
