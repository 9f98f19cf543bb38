// Command phoneverify-loadtest drives the engine against Redis (or an
// in-process miniredis) and reports issuance and verification latency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	phoneverify "github.com/MrEthical07/phoneverify"
)

type issued struct {
	phone string
	code  string
}

func main() {
	var (
		numbers     = flag.Int("numbers", 20000, "distinct phone numbers to issue codes for")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		contenders  = flag.Int("contenders", 64, "concurrent issuers racing for one number")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *numbers <= 0 || *concurrency <= 0 || *contenders <= 0 {
		fmt.Fprintln(os.Stderr, "numbers, concurrency, and contenders must be > 0")
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
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := phoneverify.DefaultConfig()
	cfg.Phone.DefaultRegion = "ZA"
	cfg.Verification.TTL = 10 * time.Minute
	cfg.Abuse.Enabled = false
	cfg.Store.RedisPrefix = fmt.Sprintf("pvload%d", time.Now().Unix())

	engine, err := phoneverify.New().
		WithConfig(cfg).
		WithRedis(client).
		WithTransport(phoneverify.TransportFunc(func(context.Context, string, string) error { return nil })).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	codes := make([]issued, *numbers)
	issueStats := runPhase("issue", *numbers, *concurrency, func(i int) error {
		phone := fmt.Sprintf("+2782%07d", i)
		res, err := engine.Issue(ctx, phone, phoneverify.PurposeAuth)
		if err != nil {
			return err
		}
		codes[i] = issued{phone: phone, code: res.Code}
		return nil
	})

	verifyStats := runPhase("verify", *numbers, *concurrency, func(i int) error {
		if codes[i].code == "" {
			return errors.New("no code issued")
		}
		_, err := engine.Verify(ctx, codes[i].phone, phoneverify.PurposeAuth, codes[i].code)
		return err
	})

	var winners int64
	contendStats := runPhase("contend", *contenders, *contenders, func(int) error {
		_, err := engine.Issue(ctx, "+27829999999", phoneverify.PurposeRegistration)
		switch {
		case err == nil:
			atomic.AddInt64(&winners, 1)
			return nil
		case errors.Is(err, phoneverify.ErrAlreadyPending):
			return nil
		default:
			return err
		}
	})

	report(os.Stdout, issueStats, verifyStats, contendStats)
	fmt.Printf("\ncontend winners=%d (want 1)\n", winners)
	if winners != 1 {
		os.Exit(1)
	}
}
