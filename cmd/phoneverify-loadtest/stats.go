package main

import (
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

type phaseStats struct {
	name     string
	elapsed  time.Duration
	samples  []time.Duration
	failures int64
}

// runPhase spreads ops calls of op over workers goroutines. Each worker keeps
// its own latency slice; they are merged and sorted once the phase ends.
func runPhase(name string, ops, workers int, op func(i int) error) phaseStats {
	var (
		next     atomic.Int64
		failures atomic.Int64
		wg       sync.WaitGroup
	)
	perWorker := make([][]time.Duration, workers)

	start := time.Now()
	for w := range perWorker {
		wg.Go(func() {
			for {
				i := int(next.Add(1) - 1)
				if i >= ops {
					return
				}
				began := time.Now()
				if err := op(i); err != nil {
					failures.Add(1)
				}
				perWorker[w] = append(perWorker[w], time.Since(began))
			}
		})
	}
	wg.Wait()

	s := phaseStats{
		name:     name,
		elapsed:  time.Since(start),
		samples:  slices.Concat(perWorker...),
		failures: failures.Load(),
	}
	slices.Sort(s.samples)
	return s
}

// quantile reads q (0..1) from sorted samples by nearest lower rank.
func (s phaseStats) quantile(q float64) time.Duration {
	if len(s.samples) == 0 {
		return 0
	}
	q = min(max(q, 0), 1)
	return s.samples[int(q*float64(len(s.samples)-1))]
}

func (s phaseStats) throughput() float64 {
	if s.elapsed <= 0 {
		return 0
	}
	return float64(len(s.samples)) / s.elapsed.Seconds()
}

func report(w io.Writer, phases ...phaseStats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "phase\tops\tfailed\telapsed\tops/s\tp50\tp95\tp99\t")
	for _, s := range phases {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%.0f\t%s\t%s\t%s\t\n",
			s.name, len(s.samples), s.failures,
			s.elapsed.Round(time.Millisecond), s.throughput(),
			s.quantile(0.50).Round(time.Microsecond),
			s.quantile(0.95).Round(time.Microsecond),
			s.quantile(0.99).Round(time.Microsecond))
	}
	_ = tw.Flush()
}
