// Command refresh-loadtest drives many sessions through an expired-token
// storm against an in-process identity provider and reports how many
// provider refreshes it took.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authsession"
	"github.com/MrEthical07/authsession/internal/providertest"
	"github.com/MrEthical07/authsession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 200, "number of signed-in sessions")
		concurrency = flag.Int("concurrency", 16, "concurrent requests per session in each round")
		rounds      = flag.Int("rounds", 5, "token expiry rounds")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "as-loadtest", "session key prefix")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *rounds <= 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and rounds must be > 0")
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	client, cleanup, err := redisClient(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	idp := providertest.New()
	defer idp.Close()

	cfg := authsession.DefaultConfig()
	cfg.Provider.BaseURL = idp.URL
	cfg.Session.RedisPrefix = *prefix
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := authsession.New().
		WithConfig(cfg).
		WithRedis(client).
		WithLogger(logger).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()

	fmt.Printf("signing in %d sessions...\n", *sessions)
	stores := make([]*session.Store, *sessions)
	startSeed := time.Now()
	for i := range stores {
		stores[i] = engine.NewSession()
		if _, err := engine.Login(ctx, stores[i], "alice", "secret1"); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("signed in in %s\n", time.Since(startSeed).Round(time.Millisecond))

	var all []time.Duration
	var failures int64
	start := time.Now()
	for r := 0; r < *rounds; r++ {
		idp.ExpireAccessTokens()
		lat, failed := runRound(engine, stores, idp.URL+"/api/me", *concurrency)
		all = append(all, lat...)
		failures += failed
	}
	stats := computeStats(time.Since(start), all, failures)

	snap := engine.MetricsSnapshot()
	fmt.Println("---- results ----")
	printStats("request", stats)
	fmt.Printf("provider refreshes=%d expected=%d coalesced=%d retried=%d\n",
		idp.Refreshes(),
		*sessions**rounds,
		snap.Counters[authsession.MetricRefreshCoalesced],
		snap.Counters[authsession.MetricRequestRetried],
	)
	if idp.Refreshes() != int64(*sessions**rounds) {
		fmt.Fprintln(os.Stderr, "refreshes were not coalesced to one per session and round")
		os.Exit(1)
	}
}

func redisClient(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// runRound sends concurrency requests for every session at once, all with an
// expired access token.
func runRound(engine *authsession.Engine, stores []*session.Store, url string, concurrency int) ([]time.Duration, int64) {
	var (
		wg        sync.WaitGroup
		failures  int64
		latencies = make([]time.Duration, 0, len(stores)*concurrency)
		mu        sync.Mutex
	)

	for _, store := range stores {
		client := engine.HTTPClient(store)
		for w := 0; w < concurrency; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t0 := time.Now()
				resp, err := client.Get(url)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
					if resp.StatusCode != http.StatusOK {
						atomic.AddInt64(&failures, 1)
					}
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
	}
	wg.Wait()
	return latencies, failures
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
