package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	goAuthz "github.com/MrEthical07/goAuthz"
	"github.com/MrEthical07/goAuthz/permission"
	"github.com/MrEthical07/goAuthz/store/memory"
)

type loadtestOptions struct {
	actors      int
	sessions    int
	concurrency int
	ops         int
	redisAddr   string
}

func newLoadtestCommand() *cobra.Command {
	opts := loadtestOptions{
		actors:      1000,
		sessions:    10000,
		concurrency: 64,
		ops:         100000,
	}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure create, validate and authorize throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.redisAddr == "" {
				opts.redisAddr = os.Getenv("GOAUTHZ_REDIS_ADDR")
			}
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.actors, "actors", opts.actors, "Number of actors to seed.")
	cmd.Flags().IntVar(&opts.sessions, "sessions", opts.sessions, "Number of sessions to create.")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", opts.concurrency, "Number of concurrent workers.")
	cmd.Flags().IntVar(&opts.ops, "ops", opts.ops, "Operations per validate and authorize phase.")
	cmd.Flags().StringVar(&opts.redisAddr, "redis-addr", "", "Redis address; GOAUTHZ_REDIS_ADDR or an in-process miniredis is used when empty.")
	return cmd
}

var loadtestChecks = []struct{ resource, action string }{
	{"products", "read"},
	{"products", "update"},
	{"categories", "read"},
	{"reports", "export"},
}

func runLoadtest(ctx context.Context, w io.Writer, opts loadtestOptions) error {
	if opts.actors <= 0 || opts.sessions <= 0 || opts.concurrency <= 0 || opts.ops <= 0 {
		return errors.New("actors, sessions, concurrency and ops must be > 0")
	}

	addr := opts.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Fprintf(w, "using miniredis at %s\n", addr)
	} else {
		fmt.Fprintf(w, "using redis at %s\n", addr)
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()

	store := seedLoadtestActors(opts.actors)
	cfg := goAuthz.DefaultConfig()
	cfg.Session.MaxSessionsPerActor = opts.sessions/opts.actors + 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	engine, err := goAuthz.New().
		WithConfig(cfg).
		WithRedis(client).
		WithActorProvider(store).
		WithPermissionSource(store).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	tokens := make([]string, opts.sessions)
	createStats := runPhase(opts.sessions, opts.concurrency, func(i int, _ *rand.Rand) error {
		s, err := engine.CreateSession(ctx, actorName(i%opts.actors), goAuthz.SessionOptions{IPAddress: "198.51.100.7"})
		if err != nil {
			return err
		}
		tokens[i] = s.Token
		return nil
	})

	validateStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		s, err := engine.ValidateSession(ctx, tokens[r.Intn(len(tokens))], "198.51.100.7")
		if err != nil {
			return err
		}
		if s == nil {
			return errors.New("session not found")
		}
		return nil
	})

	authorizeStats := runPhase(opts.ops, opts.concurrency, func(_ int, r *rand.Rand) error {
		c := loadtestChecks[r.Intn(len(loadtestChecks))]
		_, err := engine.Authorize(ctx, actorName(r.Intn(opts.actors)), c.resource, c.action, "")
		return err
	})

	fmt.Fprintln(w, "---- results ----")
	printStats(w, "create", createStats)
	printStats(w, "validate", validateStats)
	printStats(w, "authorize", authorizeStats)

	cs := engine.CacheStats()
	fmt.Fprintf(w, "cache: size=%d hits=%d misses=%d evictions=%d\n", cs.Size, cs.Hits, cs.Misses, cs.Evictions)
	return nil
}

func seedLoadtestActors(n int) *memory.Store {
	store := memory.New()
	store.SetRolePermissions(permission.RoleViewer, permission.MustParsePermissions("products:read", "categories:read"))
	store.SetRolePermissions(permission.RoleEditor, permission.MustParsePermissions("products:create", "products:read", "products:update"))
	store.SetRolePermissions(permission.RoleAdmin, permission.MustParsePermissions("products:*", "categories:*", "reports:*"))
	store.SetRolePermissions(permission.RoleSuperAdmin, permission.MustParsePermissions("*"))

	roles := []permission.Role{permission.RoleViewer, permission.RoleEditor, permission.RoleAdmin, permission.RoleSuperAdmin}
	for i := 0; i < n; i++ {
		store.PutActor(permission.Actor{ID: actorName(i), Role: roles[i%len(roles)], IsActive: true})
	}
	return store
}

func actorName(i int) string {
	return fmt.Sprintf("actor-%d", i)
}

func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(i, r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
		return phaseStats{total: total, failures: failures}
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

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
