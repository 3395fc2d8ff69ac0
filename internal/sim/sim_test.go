package sim_test

import (
	"context"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/donsched"
	"github.com/tomasbasham/donsched/internal/sim"
)

func TestRun(t *testing.T) {
	t.Parallel()

	tests := map[string]sim.Config{
		"priority": {Policy: donsched.Policies.Priority, Seed: 1, Threads: 6, Locks: 3, Steps: 400},
		"lottery":  {Policy: donsched.Policies.Lottery, Seed: 2, Threads: 6, Locks: 3, Steps: 400},
		"one lock": {Policy: donsched.Policies.Priority, Seed: 3, Threads: 4, Locks: 1, Steps: 200},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			report, err := sim.Run(context.Background(), cfg)
			require.NoError(t, err)
			require.Equal(t, cfg.Steps, report.Steps)
			require.Zero(t, report.Inconsistencies)

			dispatched := 0
			for _, n := range report.Dispatches {
				dispatched += n
			}
			require.Equal(t, cfg.Steps, dispatched)

			for name, peak := range report.PeakEffective {
				require.GreaterOrEqual(t, peak, report.Priorities[name], "peak effective priority of %s", name)
			}
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	cfg := sim.Config{Policy: donsched.Policies.Lottery, Seed: 42, Threads: 5, Locks: 2, Steps: 300}

	first, err := sim.Run(context.Background(), cfg)
	require.NoError(t, err)
	second, err := sim.Run(context.Background(), cfg)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("runs with the same seed differ (-first +second):\n%s", diff)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	_, err := sim.Run(context.Background(), sim.Config{Policy: donsched.Policies.Priority, Locks: 1, Steps: 1})
	require.ErrorIs(t, err, sim.ErrInvalidConfig)

	_, err = sim.Run(context.Background(), sim.Config{Threads: 1, Locks: 1, Steps: 1})
	require.ErrorIs(t, err, sim.ErrInvalidConfig)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := sim.Run(ctx, sim.Config{Policy: donsched.Policies.Priority, Threads: 2, Locks: 1, Steps: 10})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.Steps)

	report, err = sim.Run(ctx, sim.Config{Policy: donsched.Policies.Priority, Threads: 2, Locks: 1, Steps: 10, Rate: 1000})
	require.Error(t, err)
	require.Zero(t, report.Steps)
}

func TestRun_Paced(t *testing.T) {
	t.Parallel()

	synctest.Test(t, func(t *testing.T) {
		cfg := sim.Config{
			Policy:  donsched.Policies.Priority,
			Threads: 3,
			Locks:   2,
			Steps:   5,
			Rate:    10,
			Logger:  testr.New(t),
		}

		start := time.Now()
		report, err := sim.Run(context.Background(), cfg)
		require.NoError(t, err)
		require.Equal(t, 5, report.Steps)

		// The first step spends the initial token; each later one waits 100ms.
		elapsed := time.Since(start)
		if elapsed < 399*time.Millisecond || elapsed > 500*time.Millisecond {
			t.Errorf("expected about 400ms of pacing, got: %s", elapsed)
		}
	})

	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()

		cfg := sim.Config{Policy: donsched.Policies.Lottery, Threads: 3, Locks: 2, Steps: 100, Rate: 10}
		report, err := sim.Run(ctx, cfg)
		require.Error(t, err)
		require.Less(t, report.Steps, cfg.Steps)
	})
}

func TestScenarios(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"ordering": {
			"next: a\nnext: b\nnext: c\n",
		},
		"inversion": {
			"queue 0 (priority) transfer=true holder=x -->y(7/7)\n",
			"x(1/7) <-y:7@0\n",
			"queue 0 (priority) transfer=true holder=y\n",
			"x(1/1)\n",
		},
		"chain": {
			"priority:\n  x(1/7) <-y:7@0\n  y(1/7) <-z:7@1 ->x\n  z(7/7) ->y\n",
			"lottery:\n  x(1/102) <-y:101@0\n  y(1/101) <-z:100@1 ->x\n  z(100/100) ->y\n",
		},
		"lottery": {
			"t1: ", "t2: ", "t3: ",
		},
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, ok := sim.Lookup(name)
			require.True(t, ok)

			var b strings.Builder
			require.NoError(t, s.Run(&b, testr.New(t)))
			for _, w := range want {
				require.Contains(t, b.String(), w)
			}
		})
	}

	require.Len(t, sim.Scenarios(), len(tests))
	_, ok := sim.Lookup("missing")
	require.False(t, ok)
}
