package authsession

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/session"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// commitTimeout bounds the store write that records a flight's outcome. It is
// separate from the flight deadline, which may already have passed.
const commitTimeout = 2 * time.Second

// Coordinator collapses concurrent refresh demand for a session into one
// provider call and hands the outcome to every caller that joined it.
//
// Flights are keyed by session id. Different sessions never share a flight.
type Coordinator struct {
	engine  *Engine
	deps    flows.RefreshDeps
	timeout time.Duration

	group singleflight.Group

	mu       sync.Mutex
	inflight map[string]struct{}
}

func newCoordinator(e *Engine, deps flows.RefreshDeps, timeout time.Duration) *Coordinator {
	return &Coordinator{
		engine:   e,
		deps:     deps,
		timeout:  timeout,
		inflight: make(map[string]struct{}),
	}
}

// Refreshing reports whether a refresh is in flight for session id.
func (c *Coordinator) Refreshing(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[id]
	return ok
}

// RequestRefresh exchanges the refresh token of store for a new credential,
// or joins the refresh already in flight for it.
//
// A failed refresh clears the session and returns ErrUnauthenticated wrapping
// the cause. Every caller of one flight gets the same outcome. A caller whose
// ctx ends first gets ctx.Err() while the flight carries on for the others.
func (c *Coordinator) RequestRefresh(ctx context.Context, store *session.Store) (session.Credential, error) {
	return c.refresh(ctx, store, "")
}

// refresh is RequestRefresh for a caller that saw stale rejected. A flight
// started by such a caller returns the current credential without calling
// the provider when the session no longer holds stale.
func (c *Coordinator) refresh(ctx context.Context, store *session.Store, stale string) (session.Credential, error) {
	if store == nil {
		return session.Credential{}, ErrNilSession
	}
	if err := c.guard(ctx, store); err != nil {
		return session.Credential{}, err
	}

	var led atomic.Bool
	ch := c.group.DoChan(store.ID(), func() (any, error) {
		led.Store(true)
		return c.flight(ctx, store, stale)
	})

	select {
	case res := <-ch:
		if !led.Load() {
			c.engine.metricInc(MetricRefreshCoalesced)
			c.engine.logger.WithFields(logrus.Fields{"op": "refresh", "session_id": store.ID()}).
				Debug("joined in-flight refresh")
		}
		if res.Err != nil {
			return session.Credential{}, res.Err
		}
		return res.Val.(session.Credential), nil
	case <-ctx.Done():
		return session.Credential{}, ctx.Err()
	}
}

// guard fails fast when there is nothing to refresh. An authenticated session
// that cannot be refreshed is cleared.
func (c *Coordinator) guard(ctx context.Context, store *session.Store) error {
	snap := store.Get()
	if !snap.Authenticated() {
		return ErrUnauthenticated
	}
	if snap.Credential.HasRefreshToken() {
		return nil
	}

	wctx, cancel := commitContext(ctx)
	defer cancel()
	cleared, err := store.ClearIf(wctx, snap.Generation)
	if cleared {
		c.engine.sessionCleared(wctx, snap, "no_refresh_token", err)
	}
	return ErrUnauthenticated
}

func (c *Coordinator) flight(parent context.Context, store *session.Store, stale string) (session.Credential, error) {
	id := store.ID()
	c.mu.Lock()
	c.inflight[id] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	snap := store.Get()
	if !snap.Authenticated() || !snap.Credential.HasRefreshToken() {
		return session.Credential{}, ErrUnauthenticated
	}
	if stale != "" && snap.Credential.AccessToken != stale {
		return *snap.Credential, nil
	}

	e := c.engine
	log := e.logger.WithFields(logrus.Fields{"op": "refresh", "session_id": id})

	e.metricInc(MetricRefreshStarted)
	start := time.Now()
	res := flows.RunRefresh(ctx, *snap.Credential, c.deps)
	e.metricObserve(MetricRefreshLatency, time.Since(start))

	// The provider call may have used up ctx. The outcome still has to reach
	// the persister.
	wctx, wcancel := commitContext(parent)
	defer wcancel()

	if res.Failure != flows.RefreshFailureNone {
		cause := res.Err
		if cause == nil {
			cause = ErrUnauthenticated
		}

		cleared, perr := store.ClearIf(wctx, snap.Generation)
		if !cleared {
			e.metricInc(MetricRefreshSuperseded)
			log.Debug("refresh failed after the session changed")
			return current(store)
		}

		e.metricInc(MetricRefreshFailure)
		log.WithError(cause).Warn("refresh failed, session cleared")
		e.emitAudit(wctx, auditEventRefreshFailure, false, id, snap.Identity.SubjectID, snap.Identity.Username, cause, func() map[string]string {
			return map[string]string{"reason": refreshFailureReason(res.Failure)}
		})
		e.sessionCleared(wctx, snap, "refresh_failed", perr)
		return session.Credential{}, fmt.Errorf("%w: %w", ErrUnauthenticated, cause)
	}

	ident := res.Identity
	if ident.Username == "" {
		ident.Username = snap.Identity.Username
	}

	replaced, perr := store.ReplaceIf(wctx, snap.Generation, res.Credential, ident)
	if !replaced {
		e.metricInc(MetricRefreshSuperseded)
		log.Debug("refresh outcome discarded, session changed in flight")
		return current(store)
	}
	if perr != nil {
		e.metricInc(MetricPersistFailure)
		log.WithError(perr).Warn("refreshed session not persisted")
	}

	e.metricInc(MetricRefreshSuccess)
	if res.Rotated {
		e.metricInc(MetricRefreshRotated)
	}
	e.emitAudit(wctx, auditEventRefreshSuccess, true, id, ident.SubjectID, ident.Username, nil, func() map[string]string {
		if res.Rotated {
			return map[string]string{"rotated": "true"}
		}
		return nil
	})

	return res.Credential, nil
}

// commitContext returns a context for persisting a refresh outcome. It keeps
// the values of parent but not its cancellation or deadline.
func commitContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), commitTimeout)
}

// current resolves a superseded flight with whatever the session now holds.
func current(store *session.Store) (session.Credential, error) {
	snap := store.Get()
	if !snap.Authenticated() {
		return session.Credential{}, ErrUnauthenticated
	}
	return *snap.Credential, nil
}

func refreshFailureReason(k flows.RefreshFailureKind) string {
	switch k {
	case flows.RefreshFailureNoRefreshToken:
		return "no_refresh_token"
	case flows.RefreshFailureProvider:
		return "provider"
	case flows.RefreshFailureDecode:
		return "decode"
	default:
		return "unknown"
	}
}
