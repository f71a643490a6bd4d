package echo

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/andx/cmd/util"
	libUtil "github.com/ValentinKolb/andx/lib/util"
	"github.com/ValentinKolb/andx/rpc/common"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Run concurrent echo requests over one connection and print latency statistics",
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfNumThreads  = 10
	perfRequests    = 10000
	perfPayloadSize = 64
	perfCSV         = ""
)

func init() {
	key := "threads"
	perfCmd.Flags().Int(key, perfNumThreads, util.WrapString("Number of goroutines submitting requests concurrently"))
	key = "requests"
	perfCmd.Flags().Int(key, perfRequests, util.WrapString("Total number of echo requests to send"))
	key = "payload-size"
	perfCmd.Flags().Int(key, perfPayloadSize, util.WrapString("Payload size of each echo request (in bytes)"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save the results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfNumThreads = viper.GetInt("threads")
	perfRequests = viper.GetInt("requests")
	perfPayloadSize = viper.GetInt("payload-size")
	perfCSV = viper.GetString("csv")

	if perfNumThreads <= 0 || perfRequests <= 0 {
		return fmt.Errorf("threads and requests must be positive")
	}
	if perfPayloadSize < 0 || perfPayloadSize > 0xFFFF-64 {
		return fmt.Errorf("payload size %d does not fit into a frame", perfPayloadSize)
	}
	return nil
}

// perfResult holds what one perf run measured
type perfResult struct {
	timer      metrics.Timer
	replySizes *libUtil.FrameSizeHistogram
	perWorker  libUtil.Stats
	errors     int64
	elapsed    time.Duration
}

func runPerf(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Performance testing tool for the request multiplexer")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintln(out, connConfig.String())
	fmt.Fprintf(out, "Threads: %d, Requests: %d, Payload: %d bytes\n\n", perfNumThreads, perfRequests, perfPayloadSize)

	res := perfRun(cmd.Context())

	printResult(cmd, res)

	if perfCSV != "" {
		if err := saveCSV(perfCSV, res); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		fmt.Fprintf(out, "results saved to %s\n", perfCSV)
	}
	return nil
}

// perfRun spreads perfRequests echo requests over perfNumThreads goroutines
// sharing the connection
func perfRun(ctx context.Context) *perfResult {
	res := &perfResult{
		timer:      metrics.NewTimer(),
		replySizes: libUtil.NewFrameSizeHistogram(),
	}
	defer res.timer.Stop()

	payload := bytes.Repeat([]byte{'x'}, perfPayloadSize)

	var (
		next   atomic.Int64
		failed atomic.Int64
		wg     sync.WaitGroup
	)
	rates := make([]float64, perfNumThreads)

	start := time.Now()
	for w := 0; w < perfNumThreads; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			workerStart := time.Now()
			done := 0

			for next.Add(1) <= int64(perfRequests) {
				reqStart := time.Now()
				reply, err := echo(ctx, uint16(done), payload)
				if err != nil {
					failed.Add(1)
					plog.Debugf("echo failed (%s): %v", common.StatusOf(err), err)
					continue
				}
				res.timer.UpdateSince(reqStart)
				res.replySizes.AddSample(len(reply.Bytes))
				done++
			}

			if d := time.Since(workerStart).Seconds(); d > 0 {
				rates[w] = float64(done) / d
			}
		}(w)
	}
	wg.Wait()

	res.elapsed = time.Since(start)
	res.errors = failed.Load()
	res.perWorker = libUtil.NewStats(rates)
	return res
}

func printResult(cmd *cobra.Command, res *perfResult) {
	out := cmd.OutOrStdout()
	t := res.timer.Snapshot()
	ps := t.Percentiles([]float64{0.5, 0.9, 0.99, 0.999})

	fmt.Fprintf(out, "%-20s %d ok, %d failed in %s\n", "requests:", t.Count(), res.errors, res.elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "%-20s %.0f req/s\n", "throughput:", float64(t.Count())/res.elapsed.Seconds())
	fmt.Fprintf(out, "%-20s min %s, mean %s, max %s, stddev %s\n", "latency:",
		time.Duration(t.Min()), time.Duration(t.Mean()), time.Duration(t.Max()), time.Duration(t.StdDev()))
	fmt.Fprintf(out, "%-20s p50 %s, p90 %s, p99 %s, p99.9 %s\n", "percentiles:",
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), time.Duration(ps[3]))
	fmt.Fprintf(out, "%-20s mean %.0f req/s, stddev %.0f, min/max %.2f\n", "per goroutine:",
		res.perWorker.Mean, res.perWorker.StdDeviation, res.perWorker.MinMaxRatio)
	fmt.Fprintf(out, "%-20s avg %d bytes, p99 %d bytes\n", "reply payload:",
		res.replySizes.AverageSize(), res.replySizes.PercentileEstimate(99))
}

func saveCSV(path string, res *perfResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	t := res.timer.Snapshot()
	ps := t.Percentiles([]float64{0.5, 0.9, 0.99})

	w := csv.NewWriter(f)
	records := [][]string{
		{"threads", "requests", "payload_bytes", "ok", "failed", "elapsed_ns", "mean_ns", "p50_ns", "p90_ns", "p99_ns"},
		{
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfRequests),
			strconv.Itoa(perfPayloadSize),
			strconv.FormatInt(t.Count(), 10),
			strconv.FormatInt(res.errors, 10),
			strconv.FormatInt(res.elapsed.Nanoseconds(), 10),
			strconv.FormatFloat(t.Mean(), 'f', 0, 64),
			strconv.FormatFloat(ps[0], 'f', 0, 64),
			strconv.FormatFloat(ps[1], 'f', 0, 64),
			strconv.FormatFloat(ps[2], 'f', 0, 64),
		},
	}
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return f.Close()
}
