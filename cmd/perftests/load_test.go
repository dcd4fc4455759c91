package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"charity-auction/internal/biddingerrors"
)

// LoadScenario defines configurable benchmark parameters
type LoadScenario struct {
	Name        string
	NumSessions int
	NumItems    int
	ReadRatio   int
	Burst       bool // if true, no delay between ops
}

// OperationMetrics collects latencies safely
type OperationMetrics struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(d time.Duration) {
	om.mu.Lock()
	om.latencies = append(om.latencies, d)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (min, max, avg, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()
	if len(om.latencies) == 0 {
		return
	}
	latencies := append([]time.Duration(nil), om.latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	min = latencies[0]
	max = latencies[len(latencies)-1]

	var total time.Duration
	for _, d := range latencies {
		total += d
	}
	avg = total / time.Duration(len(latencies))
	p95 = latencies[int(0.95*float64(len(latencies)))]
	p99 = latencies[int(0.99*float64(len(latencies)))]
	return
}

// Benchmark_Load_AuctionSystem runs multiple scenarios
func Benchmark_Load_AuctionSystem(b *testing.B) {
	scenarios := []LoadScenario{
		{"Low-Contention-WriteHeavy", 200, 200, 0, false},
		{"High-Contention-WriteHeavy", 500, 5, 0, false},
		{"Mixed-Workload", 300, 50, 7, false},
		{"ReadHeavy", 200, 50, 9, false},
		{"Edge-Case-SingleItem", 100, 1, 5, false},
		{"Peak-Burst", 500, 50, 0, true},
	}

	for _, s := range scenarios {
		b.Run(s.Name, func(b *testing.B) {
			runParallelScenario(b, s)
		})
	}
}

func runParallelScenario(b *testing.B, s LoadScenario) {
	b.ReportAllocs()

	_, svc := newBenchService(b, s.NumItems)
	ctx := context.Background()

	var totalOps, acceptedBids, conflicts, otherFailures, totalReads int64
	nextAmount := make([]int64, s.NumItems)
	metrics := &OperationMetrics{}

	start := time.Now()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

		for pb.Next() {
			itemIndex := rnd.Intn(s.NumItems)
			itemID := fmt.Sprintf("item_%d", itemIndex)
			sessionID := "session_" + strconv.Itoa(rnd.Intn(s.NumSessions))

			opStart := time.Now()
			if rnd.Intn(10) < s.ReadRatio {
				if _, err := svc.State(ctx, sessionID, itemID); err != nil {
					b.Logf("ignored read error: %v", err)
				}
				atomic.AddInt64(&totalReads, 1)
			} else {
				amount := 100 + atomic.AddInt64(&nextAmount[itemIndex], 50)
				_, _, err := svc.PlaceBid(ctx, sessionID, itemID, form(amount))
				switch {
				case err == nil:
					atomic.AddInt64(&acceptedBids, 1)
				case errors.Is(err, biddingerrors.ErrBidConflict), errors.Is(err, biddingerrors.ErrInvalidBid),
					errors.Is(err, biddingerrors.ErrSubmissionInProgress):
					atomic.AddInt64(&conflicts, 1)
				default:
					b.Logf("ignored bid error: %v", err)
					atomic.AddInt64(&otherFailures, 1)
				}
			}

			metrics.Record(time.Since(opStart))
			atomic.AddInt64(&totalOps, 1)

			if !s.Burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	elapsed := time.Since(start)
	throughput := float64(totalOps) / elapsed.Seconds()
	min, max, avg, p95, p99 := metrics.Stats()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"Scenario: %s | Items: %d | Sessions: %d | Total Ops: %d | Accepted: %d | Rejected: %d | Failed: %d | Reads: %d | Elapsed: %s | Throughput: %.2f ops/sec | Latency(us) min: %.2f avg: %.2f max: %.2f p95: %.2f p99: %.2f | Memory Alloc: %.2f MB",
		s.Name, s.NumItems, s.NumSessions, totalOps, acceptedBids, conflicts, otherFailures, totalReads, elapsed,
		throughput,
		float64(min.Microseconds()), float64(avg.Microseconds()), float64(max.Microseconds()),
		float64(p95.Microseconds()), float64(p99.Microseconds()),
		float64(mem.Alloc)/1024/1024,
	)
}
