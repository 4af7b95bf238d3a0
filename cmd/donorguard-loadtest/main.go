package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	donorguard "github.com/MrEthical07/donorguard"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// Exercises the Guard against a shared Redis: a rate-limit phase spread
// over many identifiers and an OTP phase where every worker hammers a small
// set of subjects with wrong codes. The OTP phase checks that no subject
// ever reports more mismatches than its attempt budget allows.
func main() {
	var (
		identifiers = flag.Int("identifiers", 10000, "distinct rate-limit identifiers")
		subjects    = flag.Int("subjects", 200, "OTP subjects to issue codes for")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "dgload", "store key prefix")
	)
	flag.Parse()

	if *identifiers <= 0 || *subjects <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identifiers, subjects, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := donorguard.DefaultConfig()
	cfg.KeyPrefix = *prefix
	// Per-flow limits would mask the attempt budget under test.
	cfg.RateLimit.OTPRequestPerIP = donorguard.Limit{}
	cfg.RateLimit.OTPRequestPerSubject = donorguard.Limit{}
	cfg.RateLimit.OTPVerifyPerIP = donorguard.Limit{}

	guard, err := donorguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithOTPCodeGenerator(func() (string, error) { return "482913", nil }).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build guard: %v\n", err)
		os.Exit(1)
	}
	defer guard.Close()

	subjectKeys := make([]string, *subjects)
	fmt.Printf("issuing %d codes...\n", *subjects)
	startSeed := time.Now()
	for i := range subjectKeys {
		subjectKeys[i] = fmt.Sprintf("donor-%d@load.test", i)
		if _, err := guard.RequestOTP(ctx, donorguard.OTPRequest{Subject: subjectKeys[i], Purpose: "donation"}); err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("issued in %s\n", time.Since(startSeed).Round(time.Millisecond))

	rateStats := runRatePhase(ctx, guard, *identifiers, *ops, *concurrency)
	otpStats, mismatches := runOTPPhase(ctx, guard, subjectKeys, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("rate_check", rateStats)
	printStats("otp_verify", otpStats)

	budget := int64(cfg.OTP.MaxAttempts - 1)
	violations := 0
	for i := range mismatches {
		if n := atomic.LoadInt64(&mismatches[i]); n > budget {
			violations++
		}
	}
	snap := guard.MetricsSnapshot()
	fmt.Printf("otp: mismatches=%d locked=%d not_found=%d budget_violations=%d\n",
		snap.Counters[donorguard.MetricOTPMismatch],
		snap.Counters[donorguard.MetricOTPLocked],
		snap.Counters[donorguard.MetricOTPNotFound],
		violations,
	)
	if violations > 0 {
		os.Exit(1)
	}
}

func runRatePhase(ctx context.Context, guard *donorguard.Guard, identifiers, ops, concurrency int) phaseStats {
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
				id := fmt.Sprintf("id-%d", r.Intn(identifiers))
				t0 := time.Now()
				_, err := guard.CheckRate(ctx, "load", id, 50, time.Minute)
				d := time.Since(t0)
				if err != nil && !errors.Is(err, donorguard.ErrRateLimited) {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runOTPPhase(ctx context.Context, guard *donorguard.Guard, subjects []string, ops, concurrency int) (phaseStats, []int64) {
	var (
		wg         sync.WaitGroup
		cursor     int64
		failures   int64
		latencies  = make([]time.Duration, 0, ops)
		mu         sync.Mutex
		mismatches = make([]int64, len(subjects))
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(subjects))
				t0 := time.Now()
				_, err := guard.VerifyOTP(ctx, donorguard.OTPVerifyRequest{
					Subject: subjects[idx],
					Code:    fmt.Sprintf("%06d", r.Intn(482913)),
				})
				d := time.Since(t0)
				switch {
				case errors.Is(err, donorguard.ErrInvalidOTP):
					atomic.AddInt64(&mismatches[idx], 1)
				case errors.Is(err, donorguard.ErrServiceError):
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), mismatches
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
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
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
