package authsession

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/internal/providertest"
	"github.com/MrEthical07/authsession/session"
)

func TestLoginAlice(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := engine.NewSession()

	snap, err := engine.Login(context.Background(), store, "alice", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if snap.State != session.Authenticated {
		t.Fatalf("expected Authenticated, got %v", snap.State)
	}
	id := snap.Identity
	if id.SubjectID != "7" || id.Username != "alice" || id.Role != "user" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if snap.Credential.RefreshToken == "" || snap.Credential.TokenType != "bearer" || snap.Credential.ExpiresAt.IsZero() {
		t.Fatalf("unexpected credential %+v", snap.Credential)
	}

	rec, ok := engine.Record(store)
	if !ok {
		t.Fatal("expected a session record")
	}
	if rec.ID != "7" || rec.Username != "alice" || rec.Email != "alice@example.com" || rec.Role != "user" || rec.AccessToken != snap.Credential.AccessToken {
		t.Fatalf("unexpected record %+v", rec)
	}
	if engine.MetricsSnapshot().Counters[MetricLoginSuccess] != 1 {
		t.Fatal("expected one login success")
	}
}

func TestLoginFailureLeavesSessionAnonymous(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := loginAlice(t, engine)

	_, err := engine.Login(context.Background(), store, "alice", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if store.Get().State != session.Anonymous {
		t.Fatal("failed login must leave the session Anonymous")
	}
	if _, ok := engine.Record(store); ok {
		t.Fatal("anonymous session must not expose a record")
	}
	if UserMessage(err) != "Invalid username or password" {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}

	logins := idp.Logins()
	_, err = engine.Login(context.Background(), store, "  ", "x")
	if !errors.Is(err, ErrValidationFailed) || idp.Logins() != logins {
		t.Fatalf("blank username must fail locally, got %v", err)
	}
}

func TestLoginProviderUnreachable(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	idp.Close()

	_, err := engine.Login(context.Background(), engine.NewSession(), "alice", "secret1")
	if !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := engine.NewSession()

	res, err := engine.Signup(context.Background(), store, identity.Profile{
		Username: "alice2",
		Email:    "alice@example.com",
		FullName: "Alice Again",
		Password: "pw",
	})
	if res != nil {
		t.Fatal("rejected signup must not return a result")
	}
	var ve *ValidationError
	if !errors.Is(err, ErrValidationFailed) || !errors.As(err, &ve) || ve.Detail != "email already registered" {
		t.Fatalf("expected ValidationFailed(email already registered), got %v", err)
	}
	if store.Get().State != session.Anonymous || idp.Logins() != 0 {
		t.Fatal("rejected signup must not sign in")
	}
	if UserMessage(err) != "email already registered" {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
}

func TestSignupRejectedKeepsSignedInStore(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := loginAlice(t, engine)
	before := store.Get()

	_, err := engine.Signup(context.Background(), store, identity.Profile{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "pw",
	})
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
	after := store.Get()
	if after.State != session.Authenticated || after.Generation != before.Generation {
		t.Fatalf("rejected signup changed the signed-in store: %+v", after)
	}
}

func TestSignupAutoLogin(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := engine.NewSession()

	res, err := engine.Signup(context.Background(), store, identity.Profile{
		Username: "bob",
		Email:    "bob@example.com",
		FullName: "Bob",
		Password: "hunter22",
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if res.User.Username != "bob" || res.User.ID == 0 {
		t.Fatalf("unexpected signup result %+v", res)
	}
	snap := store.Get()
	if snap.State != session.Authenticated || snap.Identity.Username != "bob" {
		t.Fatalf("expected bob to be signed in, got %+v", snap)
	}
	if snap.Identity.SubjectID != strconv.FormatInt(res.User.ID, 10) {
		t.Fatalf("subject %q does not match created user %d", snap.Identity.SubjectID, res.User.ID)
	}
}

func TestSignupWithoutAutoLogin(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, func(cfg *Config, _ *Builder) {
		cfg.Account.AutoLogin = false
	})

	res, err := engine.Signup(context.Background(), nil, identity.Profile{
		Username: "carol",
		Email:    "carol@example.com",
		Password: "pw",
	})
	if err != nil || res == nil {
		t.Fatalf("signup: %v", err)
	}
	if idp.Logins() != 0 {
		t.Fatal("auto-login disabled must not log in")
	}
}

type failingLoginProvider struct {
	IdentityProvider
}

func (failingLoginProvider) Login(context.Context, string, string) (*identity.Token, error) {
	return nil, &identity.ProviderError{Op: "login", StatusCode: 503, Detail: "Login failed"}
}

func TestSignupAutoLoginFailure(t *testing.T) {
	idp := newProvider(t)
	client, err := identity.New(idp.URL)
	if err != nil {
		t.Fatalf("identity client: %v", err)
	}
	engine := newTestEngine(t, idp, func(_ *Config, b *Builder) {
		b.WithProvider(failingLoginProvider{IdentityProvider: client})
	})
	store := engine.NewSession()

	res, err := engine.Signup(context.Background(), store, identity.Profile{
		Username: "dave",
		Email:    "dave@example.com",
		Password: "pw",
	})
	if res == nil || res.User.Username != "dave" {
		t.Fatalf("expected the signup result, got %+v", res)
	}
	if !errors.Is(err, ErrAutoLoginFailed) || !errors.Is(err, ErrProviderError) {
		t.Fatalf("expected ErrAutoLoginFailed wrapping the login error, got %v", err)
	}
	if UserMessage(err) != "Account created but login failed. Please sign in manually." {
		t.Fatalf("unexpected user message %q", UserMessage(err))
	}
	if store.Get().State != session.Anonymous {
		t.Fatal("expected Anonymous after a failed auto-login")
	}
	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricSignupSuccess] != 1 || snap.Counters[MetricSignupAutoLoginFailure] != 1 {
		t.Fatalf("unexpected signup counters %+v", snap.Counters)
	}
}

func TestSignOut(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := loginAlice(t, engine)

	if err := engine.SignOut(context.Background(), store); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if store.Get().State != session.Anonymous || store.Get().Credential != nil {
		t.Fatal("expected an empty Anonymous session")
	}
	if err := engine.SignOut(context.Background(), nil); !errors.Is(err, ErrNilSession) {
		t.Fatalf("expected ErrNilSession, got %v", err)
	}
}

func TestRestoreFromRedis(t *testing.T) {
	idp := newProvider(t)
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, idp, func(_ *Config, b *Builder) {
		b.WithRedis(rdb)
	})
	store := loginAlice(t, engine)

	restored, err := engine.Restore(context.Background(), store.ID())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	got, want := restored.Get(), store.Get()
	if got.State != session.Authenticated || got.Credential.AccessToken != want.Credential.AccessToken || got.Credential.RefreshToken != want.Credential.RefreshToken {
		t.Fatalf("restored credential differs: %+v", got.Credential)
	}
	if got.Identity.SubjectID != want.Identity.SubjectID || got.Identity.Username != want.Identity.Username || got.Identity.Role != want.Identity.Role {
		t.Fatalf("restored identity differs: %+v vs %+v", got.Identity, want.Identity)
	}

	// The restored store writes through: a refresh there is visible to a
	// later restore.
	cred, err := engine.Refresh(context.Background(), restored)
	if err != nil {
		t.Fatalf("refresh restored: %v", err)
	}
	again, err := engine.Restore(context.Background(), store.ID())
	if err != nil {
		t.Fatalf("restore again: %v", err)
	}
	if again.Get().Credential.AccessToken != cred.AccessToken {
		t.Fatal("refreshed token was not persisted")
	}

	if err := engine.SignOut(context.Background(), restored); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, err := engine.Restore(context.Background(), store.ID()); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound after sign out, got %v", err)
	}
}

func TestRestoreCorruptRecord(t *testing.T) {
	idp := newProvider(t)
	mr, rdb := newTestRedis(t)
	engine := newTestEngine(t, idp, func(_ *Config, b *Builder) {
		b.WithRedis(rdb)
	})

	if err := mr.Set("as:broken", `{"accessToken":"not-a-jwt","v":1}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := engine.Restore(context.Background(), "broken")
	if !errors.Is(err, ErrRecordCorrupt) || !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrRecordCorrupt wrapping ErrDecode, got %v", err)
	}
	if mr.Exists("as:broken") {
		t.Fatal("corrupt record must be deleted")
	}
}

func TestRestoreWithoutPersister(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	if _, err := engine.Restore(context.Background(), "any"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestSignOutEverywhere(t *testing.T) {
	idp := newProvider(t)
	_, rdb := newTestRedis(t)
	engine := newTestEngine(t, idp, func(_ *Config, b *Builder) {
		b.WithRedis(rdb)
	})

	laptop := loginAlice(t, engine)
	phone := loginAlice(t, engine)

	removed, err := engine.SignOutEverywhere(context.Background(), laptop)
	if err != nil {
		t.Fatalf("sign out everywhere: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 other session removed, got %d", removed)
	}
	if _, err := engine.Restore(context.Background(), phone.ID()); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("other session must be gone, got %v", err)
	}
	if !engine.SecurityReport().SignOutEverywhere {
		t.Fatal("redis persister must enable sign-out everywhere")
	}
}

func TestSubjectSessionsAndPing(t *testing.T) {
	idp := newProvider(t)
	mr, rdb := newTestRedis(t)
	engine := newTestEngine(t, idp, func(_ *Config, b *Builder) {
		b.WithRedis(rdb)
	})

	laptop := loginAlice(t, engine)
	phone := loginAlice(t, engine)

	ids, err := engine.SubjectSessions(context.Background(), laptop)
	if err != nil {
		t.Fatalf("subject sessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected both sessions of alice, got %v", ids)
	}

	if err := engine.SignOut(context.Background(), phone); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	ids, err = engine.SubjectSessions(context.Background(), laptop)
	if err != nil || len(ids) != 1 || ids[0] != laptop.ID() {
		t.Fatalf("expected only the laptop session, got %v %v", ids, err)
	}
	if _, err := engine.SubjectSessions(context.Background(), phone); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for a signed-out store, got %v", err)
	}

	if _, err := engine.PingPersister(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	mr.SetError("ERR injected failure")
	if _, err := engine.PingPersister(context.Background()); !errors.Is(err, session.ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestSubjectSessionsWithoutPersister(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := loginAlice(t, engine)

	if _, err := engine.SubjectSessions(context.Background(), store); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
	if _, err := engine.PingPersister(context.Background()); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("expected ErrNotSupported, got %v", err)
	}
}

func TestClosedEngineRejectsActions(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	store := engine.NewSession()
	engine.Close()

	if _, err := engine.Login(context.Background(), store, "alice", "secret1"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := engine.Refresh(context.Background(), store); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	var nilEngine *Engine
	if _, err := nilEngine.Login(context.Background(), store, "a", "b"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady from nil engine, got %v", err)
	}
}

func TestVerificationRejectsForeignTokens(t *testing.T) {
	idp := newProvider(t)

	trusted := newTestEngine(t, idp, func(cfg *Config, _ *Builder) {
		cfg.Verification.Enabled = true
		cfg.Verification.SigningMethod = "hs256"
		cfg.Verification.Key = providertest.Secret
	})
	if _, err := trusted.Login(context.Background(), trusted.NewSession(), "alice", "secret1"); err != nil {
		t.Fatalf("verified login: %v", err)
	}

	untrusted := newTestEngine(t, idp, func(cfg *Config, _ *Builder) {
		cfg.Verification.Enabled = true
		cfg.Verification.SigningMethod = "hs256"
		cfg.Verification.Key = "a-completely-different-secret-key"
	})
	store := untrusted.NewSession()
	_, err := untrusted.Login(context.Background(), store, "alice", "secret1")
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for a token signed with another key, got %v", err)
	}
	if store.Get().State != session.Anonymous {
		t.Fatal("unverifiable login must leave the session Anonymous")
	}
}

func TestWithDecoderOverridesVerification(t *testing.T) {
	idp := newProvider(t)
	var calls int
	engine := newTestEngine(t, idp, func(_ *Config, b *Builder) {
		b.WithDecoder(func(token string) (claims.Identity, error) {
			calls++
			return claims.Decode(token)
		})
	})
	loginAlice(t, engine)
	if calls != 1 {
		t.Fatalf("expected the custom decoder to run once, got %d", calls)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New()
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second build must fail")
	}

	bad := DefaultConfig()
	bad.Provider.BaseURL = "ftp://idp"
	if _, err := New().WithConfig(bad).Build(); err == nil {
		t.Fatal("invalid config must fail Build")
	}
}

func TestSessionOfNilStore(t *testing.T) {
	idp := newProvider(t)
	engine := newTestEngine(t, idp, nil)
	if engine.Session(nil).State != session.Anonymous {
		t.Fatal("nil store reads as Anonymous")
	}
	if _, err := engine.Login(context.Background(), nil, "alice", "secret1"); !errors.Is(err, ErrNilSession) {
		t.Fatalf("expected ErrNilSession, got %v", err)
	}
}
