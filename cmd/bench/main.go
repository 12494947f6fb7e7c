// Command bench runs a synthetic load workload against a loader and
// reports hit rate and request-collapse ratio, with optional pprof and
// Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DiDuV5/COSV5-sub018/cache"
	"github.com/DiDuV5/COSV5-sub018/loader"
	"github.com/DiDuV5/COSV5-sub018/metrics/prom"
	"github.com/DiDuV5/COSV5-sub018/policy"
	"github.com/DiDuV5/COSV5-sub018/stats"
)

// teeMetrics fans the hook calls out to the in-process collector and the
// optional Prometheus adapter.
type teeMetrics struct {
	sinks []loader.Metrics
}

func (t teeMetrics) Hit() {
	for _, s := range t.sinks {
		s.Hit()
	}
}
func (t teeMetrics) Miss() {
	for _, s := range t.sinks {
		s.Miss()
	}
}
func (t teeMetrics) Evict(r cache.EvictReason) {
	for _, s := range t.sinks {
		s.Evict(r)
	}
}
func (t teeMetrics) Size(entries int, bytes int64) {
	for _, s := range t.sinks {
		s.Size(entries, bytes)
	}
}
func (t teeMetrics) Dispatch(keys int) {
	for _, s := range t.sinks {
		s.Dispatch(keys)
	}
}
func (t teeMetrics) FetchError() {
	for _, s := range t.sinks {
		s.FetchError()
	}
}

func main() {
	var (
		maxSize  = flag.Int64("maxsize", 100_000, "cache capacity in size units")
		maxAge   = flag.Duration("maxage", time.Minute, "entry TTL")
		strategy = flag.String("strategy", "lru", "eviction strategy: lru | lfu | fifo")

		window   = flag.Duration("window", 10*time.Millisecond, "batch debounce window")
		batchMax = flag.Int("batchmax", 128, "forced-dispatch batch size cap")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")

		keys     = flag.Int("keys", 100_000, "keyspace size")
		fetchLat = flag.Duration("fetchlat", 2*time.Millisecond, "simulated backend latency per batch")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", "", "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	collector := stats.NewCollector()
	var metrics loader.Metrics = collector
	if *metricsAddr != "" {
		adapter := prom.New(nil, "cosv5", "bench", nil)
		metrics = teeMetrics{sinks: []loader.Metrics{collector, adapter}}
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Printf("metrics: serving at %s", *metricsAddr)
			log.Println(http.ListenAndServe(*metricsAddr, nil))
		}()
	}

	var fetchCalls, fetchedKeys atomic.Int64
	fetch := func(_ context.Context, ks []string) (map[string]string, error) {
		fetchCalls.Add(1)
		fetchedKeys.Add(int64(len(ks)))
		if *fetchLat > 0 {
			time.Sleep(*fetchLat)
		}
		out := make(map[string]string, len(ks))
		for _, k := range ks {
			out[k] = "payload:" + k
		}
		return out, nil
	}

	l, err := loader.New(loader.Config[string]{
		Fetch:        fetch,
		MaxSize:      *maxSize,
		MaxAge:       *maxAge,
		Strategy:     policy.Strategy(*strategy),
		Window:       *window,
		MaxBatchSize: *batchMax,
		SizeOf:       func(v string) int64 { return int64(len(v)) },
		Metrics:      metrics,
	})
	if err != nil {
		log.Fatalf("loader: %v", err)
	}
	defer l.Close()

	log.Printf("bench: %d workers, %s, keyspace %d, strategy %s", *workers, *duration, *keys, *strategy)

	var loads, errs atomic.Int64
	deadline := time.Now().Add(*duration)
	var wg sync.WaitGroup
	wg.Add(*workers)
	for w := 0; w < *workers; w++ {
		go func(id int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(*seed + int64(id)*7919))
			for time.Now().Before(deadline) {
				k := "k:" + strconv.Itoa(r.Intn(*keys))
				if _, err := l.Load(context.Background(), k); err != nil {
					errs.Add(1)
				}
				loads.Add(1)
			}
		}(w)
	}
	wg.Wait()

	snap := collector.Snapshot()
	st := l.Stats()
	fmt.Printf("loads:          %d (errors %d)\n", loads.Load(), errs.Load())
	fmt.Printf("hit rate:       %.2f%%\n", st.HitRate*100)
	fmt.Printf("usage:          %.1f%% (%d items)\n", st.UsagePercent, st.ItemCount)
	fmt.Printf("fetch calls:    %d (%d keys, avg batch %.1f)\n",
		fetchCalls.Load(), fetchedKeys.Load(), snap.AvgBatchSize)
	if misses := snap.Misses; misses > 0 {
		// Collapse ratio: how many cache misses were absorbed per backend
		// round trip.
		fmt.Printf("collapse ratio: %.2f misses per fetch\n", float64(misses)/float64(fetchCalls.Load()))
	}
}
