package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/donsched"
	"github.com/tomasbasham/donsched/internal/sim"
	"github.com/tomasbasham/donsched/metrics"
)

type runOptions struct {
	*rootOptions

	policy      string
	seed        uint64
	threads     int
	locks       int
	steps       int
	rate        float64
	metricsAddr string
	jsonOutput  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Simulate threads contending for locks",
		Long: `Runs threads that take and release locks in increasing order while a ready
queue picks the running thread under the chosen policy. The donation graph is
verified after every step.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.policy, "policy", "p", "priority", "Selection policy: priority or lottery")
	f.Uint64Var(&o.seed, "seed", 1, "Seed for the workload and lottery draws")
	f.IntVarP(&o.threads, "threads", "t", 8, "Number of threads")
	f.IntVarP(&o.locks, "locks", "l", 4, "Number of locks")
	f.IntVarP(&o.steps, "steps", "n", 1000, "Number of dispatch steps")
	f.Float64Var(&o.rate, "rate", 0, "Steps per second, 0 for unpaced")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	f.BoolVar(&o.jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func (o *runOptions) run(ctx context.Context, out io.Writer) error {
	p := donsched.ParsePolicy(o.policy)
	if !p.IsValid() {
		return fmt.Errorf("unknown policy %q", o.policy)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	hook := metrics.NewHook[string](reg)

	if o.metricsAddr != "" {
		stop := o.serveMetrics(reg)
		defer stop()
	}

	report, err := sim.Run(ctx, sim.Config{
		Policy:  p,
		Seed:    o.seed,
		Threads: o.threads,
		Locks:   o.locks,
		Steps:   o.steps,
		Rate:    o.rate,
		Logger:  o.logger.WithName("sim"),
		Metrics: hook,
	})
	if report != nil {
		if perr := printReport(out, report, o.jsonOutput); perr != nil {
			return perr
		}
	}
	return err
}

func (o *runOptions) serveMetrics(reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              o.metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		o.logger.Info("serving metrics", "addr", o.metricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error(err, "metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			o.logger.Error(err, "metrics server shutdown failed")
		}
	}
}

func printReport(out io.Writer, r *sim.Report, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(out, "policy:          %s\n", r.Policy)
	fmt.Fprintf(out, "steps:           %d\n", r.Steps)
	fmt.Fprintf(out, "acquisitions:    %d\n", r.Acquisitions)
	fmt.Fprintf(out, "blocked:         %d\n", r.Blocked)
	fmt.Fprintf(out, "handoffs:        %d\n", r.Handoffs)
	fmt.Fprintf(out, "donations:       %d\n", r.Donations)
	fmt.Fprintf(out, "revocations:     %d\n", r.Revocations)
	fmt.Fprintf(out, "inconsistencies: %d\n", r.Inconsistencies)
	fmt.Fprintln(out, "threads:")

	for _, name := range slices.Sorted(maps.Keys(r.Priorities)) {
		fmt.Fprintf(out, "  %s priority=%d peak=%d dispatched=%d\n",
			name, r.Priorities[name], r.PeakEffective[name], r.Dispatches[name])
	}
	return nil
}
