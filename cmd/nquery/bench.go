package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/nquery-dev/nquery/pkg/reactive"
)

// benchProfile is a named workload shape for the reactive benchmark.
type benchProfile struct {
	Name     string
	Chains   int
	Depth    int
	Duration time.Duration
	WPS      float64
	MaxProcs int
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Name:     "fast",
		Chains:   50,
		Depth:    3,
		Duration: 10 * time.Second,
		WPS:      20,
	},
	"standard": {
		Name:     "standard",
		Chains:   200,
		Depth:    5,
		Duration: 30 * time.Second,
		WPS:      50,
	},
	"stress": {
		Name:     "stress",
		Chains:   1000,
		Depth:    8,
		Duration: 60 * time.Second,
		WPS:      100,
		MaxProcs: 4,
	},
}

type benchConfig struct {
	Profile    string
	Chains     int
	Depth      int
	Duration   time.Duration
	WPS        float64
	MaxProcs   int
	JSONOutput string
}

func benchCmd() *cobra.Command {
	var (
		profileFlag  string
		chainsFlag   int
		depthFlag    int
		durationFlag string
		wpsFlag      float64
		maxProcsFlag int
		jsonFlag     string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the reactive-core load benchmark",
		Long: `Build signal→memo→effect chains and hammer them with timed writes.

Each chain is one source signal feeding a stack of memos; a terminal
effect records write-to-effect latency. Results are summarized to
stderr and emitted as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveBenchConfig(profileFlag, chainsFlag, depthFlag, durationFlag, wpsFlag, maxProcsFlag, jsonFlag)
			if err != nil {
				return err
			}
			return runBench(cfg)
		},
	}

	cmd.Flags().StringVar(&profileFlag, "profile", "standard", "profile: fast|standard|stress")
	cmd.Flags().IntVar(&chainsFlag, "chains", -1, "number of signal chains")
	cmd.Flags().IntVar(&depthFlag, "depth", -1, "memos per chain")
	cmd.Flags().StringVar(&durationFlag, "duration", "", "benchmark duration, e.g. 30s")
	cmd.Flags().Float64Var(&wpsFlag, "wps", -1, "target writes/sec per chain")
	cmd.Flags().IntVar(&maxProcsFlag, "max-procs", -1, "GOMAXPROCS cap (0 to leave unchanged)")
	cmd.Flags().StringVar(&jsonFlag, "json", "-", "JSON output path ('-' for stdout)")

	return cmd
}

func resolveBenchConfig(profileName string, chains, depth int, duration string, wps float64, maxProcs int, jsonOut string) (benchConfig, error) {
	base, ok := benchProfiles[profileName]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q", profileName)
	}

	cfg := benchConfig{
		Profile:    base.Name,
		Chains:     base.Chains,
		Depth:      base.Depth,
		Duration:   base.Duration,
		WPS:        base.WPS,
		MaxProcs:   base.MaxProcs,
		JSONOutput: jsonOut,
	}

	if chains != -1 {
		cfg.Chains = chains
	}
	if depth != -1 {
		cfg.Depth = depth
	}
	if duration != "" {
		d, err := time.ParseDuration(duration)
		if err != nil {
			return benchConfig{}, fmt.Errorf("invalid --duration: %w", err)
		}
		cfg.Duration = d
	}
	if wps != -1 {
		cfg.WPS = wps
	}
	if maxProcs != -1 {
		cfg.MaxProcs = maxProcs
	}
	if cfg.JSONOutput == "" {
		cfg.JSONOutput = "-"
	}

	if cfg.Chains <= 0 {
		return benchConfig{}, errors.New("--chains must be > 0")
	}
	if cfg.Depth < 0 {
		return benchConfig{}, errors.New("--depth must be >= 0")
	}
	if cfg.Duration <= 0 {
		return benchConfig{}, errors.New("--duration must be > 0")
	}
	if cfg.WPS <= 0 {
		return benchConfig{}, errors.New("--wps must be > 0")
	}
	if cfg.MaxProcs < 0 {
		return benchConfig{}, errors.New("--max-procs must be >= 0")
	}

	return cfg, nil
}

// chain is one source signal feeding depth memos and a terminal effect.
type chain struct {
	src *reactive.Signal[int64]
}

func runBench(cfg benchConfig) error {
	if cfg.MaxProcs > 0 {
		runtime.GOMAXPROCS(cfg.MaxProcs)
	}
	debug.SetGCPercent(100)

	rt := reactive.NewRuntime()
	defer rt.Close()

	var (
		writes  atomic.Uint64
		fires   atomic.Uint64
		samples []time.Duration
		sampMu  sync.Mutex
	)

	chains := make([]*chain, cfg.Chains)
	for i := range chains {
		src := reactive.NewSignal[int64](0)
		top := src.Get
		if cfg.Depth > 0 {
			memos := make([]*reactive.Memo[int64], cfg.Depth)
			prev := func() int64 { return src.Get() }
			for d := 0; d < cfg.Depth; d++ {
				read := prev
				memos[d] = reactive.NewMemo(func() int64 { return read() })
				m := memos[d]
				prev = func() int64 { return m.Get() }
			}
			top = prev
		}

		read := top
		reactive.NewEffect(func() reactive.Cleanup {
			ts := read()
			if ts == 0 {
				return nil
			}
			fires.Add(1)
			rtt := time.Duration(time.Now().UnixNano() - ts)
			sampMu.Lock()
			samples = append(samples, rtt)
			sampMu.Unlock()
			return nil
		}, reactive.InScope(rt.Scope()))

		chains[i] = &chain{src: src}
	}
	rt.Wait()

	var before runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	beforeMetrics := readRuntimeMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(len(chains))
	for _, ch := range chains {
		go func(ch *chain) {
			defer wg.Done()
			period := time.Duration(float64(time.Second) / cfg.WPS)
			ticker := time.NewTicker(period)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					ch.src.Set(time.Now().UnixNano())
					writes.Add(1)
				}
			}
		}(ch)
	}
	wg.Wait()
	rt.Wait()
	elapsed := time.Since(start)

	var after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&after)
	afterMetrics := readRuntimeMetrics()

	sampMu.Lock()
	latencies := append([]time.Duration(nil), samples...)
	sampMu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	report := buildBenchReport(cfg, elapsed, latencies, writes.Load(), fires.Load(), before, after, beforeMetrics, afterMetrics)
	writeBenchSummary(os.Stderr, report)
	return writeBenchJSON(cfg.JSONOutput, report)
}

type benchReport struct {
	Version    string         `json:"version"`
	Run        runInfo        `json:"run"`
	Workload   workloadInfo   `json:"workload"`
	LatencyMS  latencyInfo    `json:"latency_ms"`
	Throughput throughputInfo `json:"throughput"`
	GC         gcInfo         `json:"gc"`
}

type runInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
}

type workloadInfo struct {
	Profile     string  `json:"profile"`
	Chains      int     `json:"chains"`
	Depth       int     `json:"depth"`
	DurationMS  int64   `json:"duration_ms"`
	WPSPerChain float64 `json:"wps_per_chain"`
	MaxProcs    int     `json:"max_procs"`
}

type latencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type throughputInfo struct {
	WritesTotal       uint64  `json:"writes_total"`
	EffectsTotal      uint64  `json:"effects_total"`
	WritesPerSec      float64 `json:"writes_per_sec"`
	EffectsPerWrite   float64 `json:"effects_per_write"`
	CoalescedFraction float64 `json:"coalesced_fraction"`
}

type gcInfo struct {
	AllocMB       float64 `json:"alloc_mb"`
	HeapLiveMB    float64 `json:"heap_live_mb"`
	NumGC         uint32  `json:"num_gc"`
	PauseTotalMS  float64 `json:"pause_total_ms"`
	PauseAvgMS    float64 `json:"pause_avg_ms"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
	AllocsObjects uint64  `json:"allocs_objects"`
}

func buildBenchReport(
	cfg benchConfig,
	elapsed time.Duration,
	latencies []time.Duration,
	writesTotal, firesTotal uint64,
	before, after runtime.MemStats,
	beforeMetrics, afterMetrics runtimeMetricsSnapshot,
) benchReport {
	elapsedSeconds := math.Max(0.001, elapsed.Seconds())

	latency := latencyInfo{}
	if len(latencies) > 0 {
		latency = latencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}

	effectsPerWrite := 0.0
	coalesced := 0.0
	if writesTotal > 0 {
		effectsPerWrite = float64(firesTotal) / float64(writesTotal)
		coalesced = 1 - effectsPerWrite
		if coalesced < 0 {
			coalesced = 0
		}
	}

	return benchReport{
		Version: "1",
		Run: runInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
		},
		Workload: workloadInfo{
			Profile:     cfg.Profile,
			Chains:      cfg.Chains,
			Depth:       cfg.Depth,
			DurationMS:  cfg.Duration.Milliseconds(),
			WPSPerChain: cfg.WPS,
			MaxProcs:    cfg.MaxProcs,
		},
		LatencyMS: latency,
		Throughput: throughputInfo{
			WritesTotal:       writesTotal,
			EffectsTotal:      firesTotal,
			WritesPerSec:      float64(writesTotal) / elapsedSeconds,
			EffectsPerWrite:   effectsPerWrite,
			CoalescedFraction: coalesced,
		},
		GC: gcInfo{
			AllocMB:       float64(after.TotalAlloc-before.TotalAlloc) / (1024 * 1024),
			HeapLiveMB:    float64(after.HeapAlloc) / (1024 * 1024),
			NumGC:         after.NumGC - before.NumGC,
			PauseTotalMS:  ms(time.Duration(after.PauseTotalNs - before.PauseTotalNs)),
			PauseAvgMS:    ms(avgPause(after, before)),
			GCCPUFraction: cpuFraction(afterMetrics, beforeMetrics),
			AllocsObjects: afterMetrics.heapAllocsObjects - beforeMetrics.heapAllocsObjects,
		},
	}
}

func writeBenchSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== nQuery Reactive Benchmark ===")
	fmt.Fprintf(w, "Profile: %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Chains: %d (depth %d)\n", report.Workload.Chains, report.Workload.Depth)
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(report.Workload.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Target per-chain rate: %.2f writes/s\n", report.Workload.WPSPerChain)
	if report.Workload.MaxProcs > 0 {
		fmt.Fprintf(w, "GOMAXPROCS cap: %d\n", report.Workload.MaxProcs)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Total writes: %d\n", report.Throughput.WritesTotal)
	fmt.Fprintf(w, "Total effect runs: %d\n", report.Throughput.EffectsTotal)
	fmt.Fprintf(w, "Throughput: %.1f writes/s\n", report.Throughput.WritesPerSec)
	fmt.Fprintf(w, "Coalesced by batching: %.1f%%\n", report.Throughput.CoalescedFraction*100)
	fmt.Fprintln(w)

	if report.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples recorded.")
	} else {
		fmt.Fprintln(w, "Write-to-effect latency:")
		fmt.Fprintf(w, "  min: %.3f ms\n", report.LatencyMS.Min)
		fmt.Fprintf(w, "  p50: %.3f ms\n", report.LatencyMS.P50)
		fmt.Fprintf(w, "  p95: %.3f ms\n", report.LatencyMS.P95)
		fmt.Fprintf(w, "  p99: %.3f ms\n", report.LatencyMS.P99)
		fmt.Fprintf(w, "  max: %.3f ms\n", report.LatencyMS.Max)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Go runtime / GC (process-wide):")
	fmt.Fprintf(w, "  alloc:     %.2f MB\n", report.GC.AllocMB)
	fmt.Fprintf(w, "  heap_live: %.2f MB\n", report.GC.HeapLiveMB)
	fmt.Fprintf(w, "  num_gc:    %d\n", report.GC.NumGC)
	fmt.Fprintf(w, "  gc_pause:  %.2f ms (total)\n", report.GC.PauseTotalMS)
	fmt.Fprintf(w, "  gc_pause:  %.2f ms (avg)\n", report.GC.PauseAvgMS)
	fmt.Fprintf(w, "  gc_cpu:    %.2f%%\n", report.GC.GCCPUFraction*100)
}

func writeBenchJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

type runtimeMetricsSnapshot struct {
	cpuTotalSeconds float64
	cpuGCSeconds    float64

	heapAllocsBytes   uint64
	heapAllocsObjects uint64
}

func readRuntimeMetrics() runtimeMetricsSnapshot {
	samples := []metrics.Sample{
		{Name: "/cpu/classes/total:cpu-seconds"},
		{Name: "/cpu/classes/gc/total:cpu-seconds"},
		{Name: "/gc/heap/allocs:bytes"},
		{Name: "/gc/heap/allocs:objects"},
	}
	metrics.Read(samples)

	var out runtimeMetricsSnapshot
	for _, s := range samples {
		switch s.Name {
		case "/cpu/classes/total:cpu-seconds":
			out.cpuTotalSeconds = s.Value.Float64()
		case "/cpu/classes/gc/total:cpu-seconds":
			out.cpuGCSeconds = s.Value.Float64()
		case "/gc/heap/allocs:bytes":
			out.heapAllocsBytes = s.Value.Uint64()
		case "/gc/heap/allocs:objects":
			out.heapAllocsObjects = s.Value.Uint64()
		}
	}
	return out
}

func cpuFraction(after, before runtimeMetricsSnapshot) float64 {
	total := after.cpuTotalSeconds - before.cpuTotalSeconds
	if total <= 0 {
		return 0
	}
	gc := after.cpuGCSeconds - before.cpuGCSeconds
	if gc < 0 {
		return 0
	}
	return gc / total
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avgPause(after, before runtime.MemStats) time.Duration {
	gcCount := after.NumGC - before.NumGC
	if gcCount == 0 {
		return 0
	}
	return time.Duration((after.PauseTotalNs - before.PauseTotalNs) / uint64(gcCount))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
