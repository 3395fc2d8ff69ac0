// Package sim drives a [donsched.Scheduler] with a synthetic workload of
// threads that contend for locks while a ready queue picks the running thread.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/go-logr/logr"
	"github.com/zeebo/xxh3"
	"golang.org/x/time/rate"

	"github.com/tomasbasham/donsched"
)

// Config describes a simulation run.
type Config struct {
	Policy  donsched.Policy
	Seed    uint64
	Threads int
	Locks   int
	Steps   int

	// Rate limits the number of steps per second. Zero runs unpaced.
	Rate float64

	Logger  logr.Logger
	Metrics donsched.MetricsHook[string]
}

// Report summarises a simulation run.
type Report struct {
	Policy          string         `json:"policy"`
	Steps           int            `json:"steps"`
	Dispatches      map[string]int `json:"dispatches"`
	Priorities      map[string]int `json:"priorities"`
	PeakEffective   map[string]int `json:"peakEffective"`
	Acquisitions    int            `json:"acquisitions"`
	Blocked         int            `json:"blocked"`
	Handoffs        int            `json:"handoffs"`
	Donations       int            `json:"donations"`
	Revocations     int            `json:"revocations"`
	Inconsistencies int            `json:"inconsistencies"`
}

var (
	// ErrInvalidConfig is returned when a simulation cannot be set up.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrInconsistent is returned when the donation graph fails verification.
	ErrInconsistent = errors.New("scheduler state inconsistent")
)

type thread struct {
	name    string
	home    int
	held    []int
	blocked bool
}

func (t *thread) highest() int {
	if len(t.held) == 0 {
		return -1
	}
	return slices.Max(t.held)
}

type simulation struct {
	cfg     Config
	r       *rand.Rand
	sec     *donsched.Section[string]
	bounds  donsched.Bounds
	ready   donsched.QueueID
	locks   []donsched.QueueID
	threads map[string]*thread
	report  *Report
}

// Run executes the simulation until cfg.Steps steps have run or ctx is done.
// Every step dispatches one thread from the ready queue and lets it take,
// release or wait for a lock, or change its priority. The donation graph is
// verified after every step.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.Threads <= 0 || cfg.Locks <= 0 || cfg.Steps < 0 {
		return nil, fmt.Errorf("%w: threads=%d locks=%d steps=%d", ErrInvalidConfig, cfg.Threads, cfg.Locks, cfg.Steps)
	}
	if !cfg.Policy.IsValid() {
		return nil, fmt.Errorf("%w: policy %s", ErrInvalidConfig, cfg.Policy)
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	report := &Report{
		Policy:        cfg.Policy.String(),
		Dispatches:    make(map[string]int),
		Priorities:    make(map[string]int),
		PeakEffective: make(map[string]int),
	}
	t := &tally{next: cfg.Metrics, report: report}

	s := donsched.New(cfg.Policy,
		donsched.WithLogger[string](cfg.Logger),
		donsched.WithSeed[string](cfg.Seed),
		donsched.WithMetricsHook[string](t),
		donsched.WithConsistencyChecks[string](func(err error) {
			report.Inconsistencies++
		}),
	)

	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	sim := &simulation{
		cfg:     cfg,
		r:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed)),
		bounds:  s.Bounds(),
		threads: make(map[string]*thread),
		report:  report,
	}
	s.Do(sim.setup)

	for step := range cfg.Steps {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return report, err
			}
		} else if err := ctx.Err(); err != nil {
			return report, err
		}

		var err error
		s.Do(func(sec *donsched.Section[string]) {
			sim.sec = sec
			sim.step()
			err = sec.Verify()
		})
		report.Steps++
		if err != nil {
			report.Inconsistencies++
			cfg.Logger.Error(err, "verification failed", "step", step)
			return report, fmt.Errorf("%w at step %d: %w", ErrInconsistent, step, err)
		}
	}

	cfg.Logger.Info("simulation finished", "steps", report.Steps, "handoffs", report.Handoffs, "donations", report.Donations)
	return report, nil
}

func (sim *simulation) setup(sec *donsched.Section[string]) {
	sim.sec = sec
	sim.ready = sec.NewQueue(false)
	for range sim.cfg.Locks {
		sim.locks = append(sim.locks, sec.NewQueue(true))
	}

	for i := range sim.cfg.Threads {
		name := fmt.Sprintf("thread-%02d", i)
		t := &thread{
			name: name,
			home: int(xxh3.HashString(name) % uint64(sim.cfg.Locks)),
		}
		sim.threads[name] = t

		p := sim.priority()
		if err := sec.SetPriority(name, p); err != nil {
			panic(err)
		}
		sim.report.Priorities[name] = p
		sim.report.PeakEffective[name] = p
		sec.WaitForAccess(sim.ready, name)
	}
}

// priority draws a base priority, capping the range of lottery tickets.
func (sim *simulation) priority() int {
	span := min(sim.bounds.Max-sim.bounds.Min+1, 10)
	return sim.bounds.Min + sim.r.IntN(span)
}

func (sim *simulation) step() {
	name, ok := sim.sec.NextThread(sim.ready)
	if !ok {
		sim.cfg.Logger.Info("no runnable thread")
		return
	}
	sim.report.Dispatches[name]++
	t := sim.threads[name]

	switch n := sim.r.Float64(); {
	case n < 0.35 && len(t.held) > 0:
		sim.release(t)
	case n < 0.75:
		sim.lock(t)
	case n < 0.85:
		p := sim.priority()
		if err := sim.sec.SetPriority(name, p); err != nil {
			panic(err)
		}
		sim.report.Priorities[name] = p
	}

	if !t.blocked {
		sim.sec.WaitForAccess(sim.ready, name)
	}

	for _, th := range sim.threads {
		e := sim.sec.GetEffectivePriority(th.name)
		sim.report.PeakEffective[th.name] = max(sim.report.PeakEffective[th.name], e)
	}
}

// lock takes or waits for a lock above every lock t holds, preferring its
// home lock.
func (sim *simulation) lock(t *thread) {
	low := t.highest() + 1
	if low >= len(sim.locks) {
		return
	}
	i := t.home
	if i < low {
		i = low + sim.r.IntN(len(sim.locks)-low)
	}
	q := sim.locks[i]

	if _, held := sim.sec.Holder(q); !held && sim.sec.Len(q) == 0 {
		sim.sec.Acquire(q, t.name)
		t.held = append(t.held, i)
		sim.report.Acquisitions++
		return
	}

	sim.sec.WaitForAccess(q, t.name)
	t.blocked = true
	sim.report.Blocked++
}

// release hands t's most recently taken lock to the next waiting thread,
// which becomes runnable again.
func (sim *simulation) release(t *thread) {
	i := t.held[len(t.held)-1]
	t.held = t.held[:len(t.held)-1]

	next, ok := sim.sec.NextThread(sim.locks[i])
	if !ok {
		return
	}
	sim.report.Handoffs++

	w := sim.threads[next]
	w.held = append(w.held, i)
	w.blocked = false
	sim.sec.WaitForAccess(sim.ready, next)
}

// tally counts scheduling events for the report and forwards them.
type tally struct {
	next   donsched.MetricsHook[string]
	report *Report
}

func (t *tally) OnWait(q donsched.QueueID, v string) {
	if t.next != nil {
		t.next.OnWait(q, v)
	}
}

func (t *tally) OnDequeue(q donsched.QueueID, v string) {
	if t.next != nil {
		t.next.OnDequeue(q, v)
	}
}

func (t *tally) OnRemove(q donsched.QueueID, v string) {
	if t.next != nil {
		t.next.OnRemove(q, v)
	}
}

func (t *tally) OnDonate(q donsched.QueueID, donor, donee string, amount int) {
	t.report.Donations++
	if t.next != nil {
		t.next.OnDonate(q, donor, donee, amount)
	}
}

func (t *tally) OnRevoke(q donsched.QueueID, donor, donee string) {
	t.report.Revocations++
	if t.next != nil {
		t.next.OnRevoke(q, donor, donee)
	}
}

func (t *tally) OnEffectivePriority(v string, from, to int) {
	if t.next != nil {
		t.next.OnEffectivePriority(v, from, to)
	}
}

func (t *tally) OnInconsistency(err error) {
	if t.next != nil {
		t.next.OnInconsistency(err)
	}
}
