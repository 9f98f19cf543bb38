package phoneverify

import (
	"log/slog"

	"github.com/MrEthical07/phoneverify/codestore"
	"github.com/MrEthical07/phoneverify/internal/limiters"
	"github.com/MrEthical07/phoneverify/phonenumber"
	"github.com/MrEthical07/phoneverify/proof"
)

// Engine issues, validates and consumes phone verification codes. An Engine
// is safe for concurrent use; all cross-request state lives in the code
// store and the issuance limiter.
type Engine struct {
	config        Config
	canonicalizer *phonenumber.Canonicalizer
	store         codestore.Store
	limiter       *limiters.IssuanceLimiter
	accounts      AccountStore
	transport     Transport
	clock         Clock
	proofs        *proof.Manager
	audit         *auditDispatcher
	metrics       *Metrics
	logger        *slog.Logger
	testNumbers   map[string]struct{}
}

// Close flushes pending audit events. The engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

func (e *Engine) isTestNumber(phone string) bool {
	_, ok := e.testNumbers[phone]
	return ok
}
