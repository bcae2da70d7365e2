package authsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authsession/internal/providertest"
	"github.com/MrEthical07/authsession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func testConfig(idp *providertest.Server) Config {
	cfg := DefaultConfig()
	cfg.Provider.BaseURL = idp.URL
	cfg.Provider.Timeout = 5 * time.Second
	cfg.Refresh.Timeout = 5 * time.Second
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

// newTestEngine builds an engine against idp. configure may adjust the
// config and builder before Build.
func newTestEngine(t *testing.T, idp *providertest.Server, configure func(*Config, *Builder)) *Engine {
	t.Helper()

	logger, _ := logtest.NewNullLogger()
	cfg := testConfig(idp)
	b := New().WithLogger(logger)
	if configure != nil {
		configure(&cfg, b)
	}

	engine, err := b.WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func newProvider(t *testing.T, opts ...providertest.Option) *providertest.Server {
	t.Helper()
	idp := providertest.New(opts...)
	t.Cleanup(idp.Close)
	return idp
}

func loginAlice(t *testing.T, e *Engine) *session.Store {
	t.Helper()
	store := e.NewSession()
	if _, err := e.Login(context.Background(), store, "alice", "secret1"); err != nil {
		t.Fatalf("login alice: %v", err)
	}
	return store
}

// gate blocks provider refreshes until opened. entered receives one value per
// refresh that reached the provider.
type gate struct {
	open    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func blockRefreshes(idp *providertest.Server) *gate {
	g := &gate{open: make(chan struct{}), entered: make(chan struct{}, 64)}
	idp.SetRefreshHook(func() {
		g.entered <- struct{}{}
		<-g.open
	})
	return g
}

// blockRefreshesT is blockRefreshes released at test cleanup.
func blockRefreshesT(t *testing.T, idp *providertest.Server) *gate {
	g := blockRefreshes(idp)
	t.Cleanup(g.release)
	return g
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("refresh never reached the provider")
	}
}

func (g *gate) release() {
	g.once.Do(func() { close(g.open) })
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
