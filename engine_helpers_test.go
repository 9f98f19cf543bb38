package phoneverify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const (
	testPhone      = "+27821234567"
	testPhoneOther = "+27821234568"
	testUSPhone    = "+12015550123"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMessage struct {
	to   string
	body string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, to, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, body: body})
	return nil
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeTransport) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type memoryAccounts struct {
	mu       sync.Mutex
	accounts []Account
	err      error
	lookups  []string
}

func (m *memoryAccounts) FindByAttribute(ctx context.Context, name, value string) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups = append(m.lookups, value)
	if m.err != nil {
		return nil, m.err
	}
	var out []Account
	for _, a := range m.accounts {
		for _, v := range a.Attributes[name] {
			if v == value {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func phoneAccount(id, phone string, verified bool) Account {
	v := "false"
	if verified {
		v = "true"
	}
	return Account{
		ID: id,
		Attributes: map[string][]string{
			"phoneNumber":         {phone},
			"phoneNumberVerified": {v},
		},
	}
}

type testEngine struct {
	*Engine
	mr        *miniredis.Miniredis
	clock     *fakeClock
	transport *fakeTransport
	accounts  *memoryAccounts
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Phone.DefaultRegion = "ZA"
	cfg.Abuse.TargetHourMax = 100
	cfg.Abuse.SourceHourMax = 100
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()
	return newTestEngineWithSink(t, nil, mutate)
}

func newTestEngineWithSink(t *testing.T, sink AuditSink, mutate func(*Config)) *testEngine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	mr, rdb := newTestRedis(t)
	te := &testEngine{
		mr:        mr,
		clock:     newFakeClock(),
		transport: &fakeTransport{},
		accounts:  &memoryAccounts{},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithTransport(te.transport).
		WithAccountStore(te.accounts).
		WithClock(te.clock).
		WithAuditSink(sink).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	te.Engine = engine
	return te
}

// wrongCode returns a code of the same width that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	last := len(b) - 1
	if b[last] == '9' {
		b[last] = '0'
	} else {
		b[last]++
	}
	return string(b)
}

var errTransportDown = errors.New("transport down")
