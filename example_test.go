package donorguard_test

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/donorguard"
	"github.com/MrEthical07/donorguard/notify"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates guard construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := donorguard.DefaultConfig()
	cfg.OTP.UniqueEmailPurposes = []string{"registration"}

	guard, _ := donorguard.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithNotifier(notify.NotifierFunc(func(ctx context.Context, n notify.Notification) error {
			// hand n.Code to the mailer
			return nil
		})).
		Build()
	_ = guard
}

// ExampleGuard_RequestOTP shows a typical issuance call and structured error handling.
func ExampleGuard_RequestOTP() {
	var guard *donorguard.Guard
	_, err := guard.RequestOTP(context.Background(), donorguard.OTPRequest{
		Subject: "alice@example.com",
		Purpose: "donation",
		IP:      "203.0.113.7",
	})
	if err != nil {
		var retry time.Duration
		if e, ok := err.(*donorguard.Error); ok {
			retry = e.RetryAfter
		}
		_ = retry
	}
}

// ExampleGuard_CheckRate applies an ad-hoc fixed-window budget.
func ExampleGuard_CheckRate() {
	var guard *donorguard.Guard
	decision, err := guard.CheckRate(context.Background(), "donation_ip", "203.0.113.7", 10, time.Minute)
	if err != nil {
		fmt.Println(donorguard.CodeOf(err))
		return
	}
	_ = decision.Remaining
}

// ExampleGuard_MetricsSnapshot shows how to read in-process metrics counters.
func ExampleGuard_MetricsSnapshot() {
	var guard *donorguard.Guard
	snapshot := guard.MetricsSnapshot()
	_ = snapshot
}
