package authsession

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/internal/audit"
	"github.com/MrEthical07/authsession/internal/flows"
	"github.com/MrEthical07/authsession/session"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Engine runs the session lifecycle against one identity provider.
//
// An Engine is safe for concurrent use. Sessions are owned by their
// *session.Store; the Engine keeps no per-session state apart from in-flight
// refreshes.
type Engine struct {
	config      Config
	provider    IdentityProvider
	decode      claims.DecodeFunc
	persister   session.Persister
	subjects    flows.SubjectIndex
	deps        flows.Deps
	coordinator *Coordinator
	audit       *audit.Dispatcher
	metrics     *Metrics
	logger      logrus.FieldLogger
	closed      atomic.Bool
}

// Close flushes pending audit events. Session operations fail with
// ErrEngineNotReady afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.Swap(true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events lost to a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the live metrics for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Coordinator returns the engine's refresh coordinator.
func (e *Engine) Coordinator() *Coordinator {
	return e.coordinator
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) ready() error {
	if e == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

/*
====================================
SESSIONS
====================================
*/

// NewSession returns an Anonymous session with a fresh random id.
func (e *Engine) NewSession() *session.Store {
	return session.NewStore(uuid.NewString(), e.storeOptions()...)
}

// Restore loads the persisted session id.
//
// It fails with ErrRecordNotFound for an unknown id, and with ErrRecordCorrupt
// when the record or its access token cannot be read; the record is deleted
// in that case.
func (e *Engine) Restore(ctx context.Context, id string) (*session.Store, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if e.persister == nil {
		return nil, fmt.Errorf("%w: no persister configured", ErrRecordNotFound)
	}

	store, err := session.Restore(ctx, id, e.persister, e.decode, e.storeOptions()...)
	if err != nil {
		if errors.Is(err, ErrRecordCorrupt) {
			e.metricInc(MetricSessionCleared)
			e.logger.WithFields(logrus.Fields{"op": "restore", "session_id": id}).
				WithError(err).Warn("discarded unreadable session record")
			e.emitAudit(ctx, auditEventSessionCleared, false, id, "", "", err, func() map[string]string {
				return map[string]string{"reason": "record_corrupt"}
			})
		}
		return nil, err
	}

	snap := store.Get()
	e.metricInc(MetricSessionRestored)
	e.emitAudit(ctx, auditEventSessionRestored, true, id, snap.Identity.SubjectID, snap.Identity.Username, nil, nil)
	return store, nil
}

func (e *Engine) storeOptions() []session.StoreOption {
	opts := []session.StoreOption{session.WithLifetime(e.config.Session.Lifetime)}
	if e.persister != nil {
		opts = append(opts, session.WithPersister(e.persister))
	}
	return opts
}

// Session returns the current snapshot of store. The state reads Refreshing
// while a refresh for it is in flight.
func (e *Engine) Session(store *session.Store) session.Session {
	if store == nil {
		return session.Session{State: session.Anonymous}
	}
	snap := store.Get()
	if snap.Authenticated() && e.coordinator.Refreshing(snap.ID) {
		snap.State = session.Refreshing
	}
	return snap
}

// Record returns the session record shared with other components, or false
// when store is not authenticated.
func (e *Engine) Record(store *session.Store) (session.Record, bool) {
	if store == nil {
		return session.Record{}, false
	}
	return store.Get().Record()
}

/*
====================================
ACTIONS
====================================
*/

// Login signs store in with username and password.
//
// On any failure store is left Anonymous. A persist failure is returned after
// the session has been installed in memory.
func (e *Engine) Login(ctx context.Context, store *session.Store, username, password string) (session.Session, error) {
	if err := e.ready(); err != nil {
		return session.Session{}, err
	}
	if store == nil {
		return session.Session{}, ErrNilSession
	}

	res := flows.RunLogin(ctx, username, password, e.deps.Login)
	return e.finishLogin(ctx, store, username, res)
}

func (e *Engine) finishLogin(ctx context.Context, store *session.Store, username string, res flows.LoginResult) (session.Session, error) {
	log := e.logger.WithFields(logrus.Fields{"op": "login", "session_id": store.ID()})

	if res.Failure != flows.LoginFailureNone {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, store.ID(), "", username, res.Err, nil)
		if cerr := e.clearFailed(ctx, store); cerr != nil {
			log.WithError(cerr).Warn("session record not deleted")
		}
		return store.Get(), res.Err
	}

	perr := store.Replace(ctx, res.Credential, res.Identity)
	if perr != nil {
		e.metricInc(MetricPersistFailure)
		log.WithError(perr).Warn("session not persisted")
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, store.ID(), res.Identity.SubjectID, res.Identity.Username, nil, nil)
	return store.Get(), perr
}

// clearFailed clears a store after a failed sign-in, reporting a session it
// replaced.
func (e *Engine) clearFailed(ctx context.Context, store *session.Store) error {
	snap := store.Get()
	if !snap.Authenticated() {
		return nil
	}
	cleared, err := store.ClearIf(ctx, snap.Generation)
	if cleared {
		e.sessionCleared(ctx, snap, "login_failed", nil)
	}
	return err
}

// Signup registers a new account. When Config.Account.AutoLogin is set, store
// is then signed in with the same username and password.
//
// A rejected signup leaves store untouched: a store that was already signed
// in stays signed in after ErrValidationFailed, unlike a failed Login. If the
// account was created but the follow-up login failed, the provider's result
// is returned together with an error matching ErrAutoLoginFailed and the
// login cause.
func (e *Engine) Signup(ctx context.Context, store *session.Store, p identity.Profile) (*identity.SignupResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if store == nil && e.deps.Signup.AutoLogin {
		return nil, ErrNilSession
	}

	sid := ""
	if store != nil {
		sid = store.ID()
	}

	res := flows.RunSignup(ctx, p, e.deps.Signup)
	switch res.Failure {
	case flows.SignupFailureInput, flows.SignupFailureProvider:
		e.metricInc(MetricSignupFailure)
		e.emitAudit(ctx, auditEventSignupFailure, false, sid, "", p.Username, res.Err, nil)
		return nil, res.Err
	}

	e.metricInc(MetricSignupSuccess)
	e.emitAudit(ctx, auditEventSignupSuccess, true, sid, signupSubject(res.Result), p.Username, nil, nil)

	if res.Login == nil {
		return res.Result, nil
	}
	if res.Failure == flows.SignupFailureAutoLogin {
		e.metricInc(MetricSignupAutoLoginFailure)
	}
	if _, err := e.finishLogin(ctx, store, p.Username, *res.Login); err != nil {
		if res.Failure == flows.SignupFailureAutoLogin {
			return res.Result, fmt.Errorf("%w: %w", ErrAutoLoginFailed, err)
		}
		return res.Result, err
	}
	return res.Result, nil
}

func signupSubject(res *identity.SignupResult) string {
	if res == nil || res.User.ID == 0 {
		return ""
	}
	return fmt.Sprint(res.User.ID)
}

// SignOut returns store to Anonymous and deletes its persisted record.
func (e *Engine) SignOut(ctx context.Context, store *session.Store) error {
	if store == nil {
		return ErrNilSession
	}
	snap := store.Get()
	err := flows.RunSignOut(ctx, store)
	e.afterSignOut(ctx, snap, auditEventSignOut, err, nil)
	return err
}

// SignOutEverywhere signs store out and deletes every other persisted
// session of the same subject. It returns how many other sessions were
// removed. Without a persister that indexes subjects only store is cleared.
func (e *Engine) SignOutEverywhere(ctx context.Context, store *session.Store) (int, error) {
	if store == nil {
		return 0, ErrNilSession
	}
	snap := store.Get()
	subject := ""
	if snap.Authenticated() {
		subject = snap.Identity.SubjectID
	}
	res := flows.RunSignOutEverywhere(ctx, store, subject, e.subjects)
	e.afterSignOut(ctx, snap, auditEventSignOutEverywhere, res.Err, func() map[string]string {
		return map[string]string{"removed": fmt.Sprint(res.Removed)}
	})
	return res.Removed, res.Err
}

type sessionLister interface {
	SessionIDs(ctx context.Context, subject string) ([]string, error)
}

type persisterPinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// SubjectSessions returns the ids of the live persisted sessions of the
// subject signed in to store, store's own id included.
func (e *Engine) SubjectSessions(ctx context.Context, store *session.Store) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, ErrNilSession
	}
	snap := store.Get()
	if !snap.Authenticated() {
		return nil, ErrUnauthenticated
	}
	lister, ok := e.persister.(sessionLister)
	if !ok {
		return nil, ErrNotSupported
	}
	return lister.SessionIDs(ctx, snap.Identity.SubjectID)
}

// PingPersister measures a round trip to the session persister.
func (e *Engine) PingPersister(ctx context.Context) (time.Duration, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	p, ok := e.persister.(persisterPinger)
	if !ok {
		return 0, ErrNotSupported
	}
	return p.Ping(ctx)
}

func (e *Engine) afterSignOut(ctx context.Context, snap session.Session, event string, err error, meta func() map[string]string) {
	e.metricInc(MetricSignOut)
	if err != nil {
		e.metricInc(MetricPersistFailure)
		e.logger.WithFields(logrus.Fields{"op": "sign_out", "session_id": snap.ID}).
			WithError(err).Warn("sign-out not fully persisted")
	}
	subject, username := "", ""
	if snap.Identity != nil {
		subject, username = snap.Identity.SubjectID, snap.Identity.Username
	}
	e.emitAudit(ctx, event, err == nil, snap.ID, subject, username, err, meta)
}

// Refresh exchanges the refresh token of store for a new access token. See
// Coordinator.RequestRefresh.
func (e *Engine) Refresh(ctx context.Context, store *session.Store) (session.Credential, error) {
	if err := e.ready(); err != nil {
		return session.Credential{}, err
	}
	return e.coordinator.RequestRefresh(ctx, store)
}

// sessionCleared records that snap was cleared for reason. perr is the
// persist error of the clear, if any.
func (e *Engine) sessionCleared(ctx context.Context, snap session.Session, reason string, perr error) {
	e.metricInc(MetricSessionCleared)
	if perr != nil {
		e.metricInc(MetricPersistFailure)
		e.logger.WithFields(logrus.Fields{"op": "clear", "session_id": snap.ID}).
			WithError(perr).Warn("cleared session record not deleted")
	}
	subject, username := "", ""
	if snap.Identity != nil {
		subject, username = snap.Identity.SubjectID, snap.Identity.Username
	}
	e.emitAudit(ctx, auditEventSessionCleared, true, snap.ID, subject, username, nil, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}
