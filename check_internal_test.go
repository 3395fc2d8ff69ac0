package donsched

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify_DetectsCorruption(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		corrupt func(s *Scheduler[string])
		reason  string
	}{
		"stale effective priority": {
			corrupt: func(s *Scheduler[string]) {
				s.entity("holder").effective = 2
			},
			reason: "cached effective priority 2, donations give 5",
		},
		"donation without donor record": {
			corrupt: func(s *Scheduler[string]) {
				delete(s.entity("waiter").donatedTo, s.ids["holder"])
			},
			reason: "donor waiter does not know it donates",
		},
		"stale donation amount": {
			corrupt: func(s *Scheduler[string]) {
				h := s.entity("holder")
				rec := h.received[s.ids["waiter"]]
				rec.amount = 4
				h.received[s.ids["waiter"]] = rec
			},
			reason: "donation 4 from waiter does not match its effective priority 5",
		},
		"holder unaware of queue": {
			corrupt: func(s *Scheduler[string]) {
				delete(s.entity("holder").holding, 0)
			},
			reason: "holder does not know it holds the queue",
		},
		"waiter unaware of queue": {
			corrupt: func(s *Scheduler[string]) {
				delete(s.entity("waiter").waiting, 0)
			},
			reason: "queue holds an entity that does not think it waits",
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := New[string](Policies.Priority)
			s.Do(func(sec *Section[string]) {
				q := sec.NewQueue(true)
				sec.Acquire(q, "holder")
				require.NoError(t, sec.SetPriority("waiter", 5))
				sec.WaitForAccess(q, "waiter")
				require.NoError(t, sec.Verify())

				tt.corrupt(s)

				err := sec.Verify()
				require.Error(t, err)

				var found bool
				for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
					var ce *ConsistencyError
					if errors.As(e, &ce) && ce.Reason == tt.reason {
						found = true
					}
				}
				if !found {
					t.Errorf("expected reason %q in:\n%v", tt.reason, err)
				}
			})
		})
	}
}

func TestVerify_DonationThroughPlainQueue(t *testing.T) {
	t.Parallel()

	s := New[string](Policies.Priority)
	s.Do(func(sec *Section[string]) {
		lock := sec.NewQueue(true)
		ready := sec.NewQueue(false)
		sec.Acquire(lock, "holder")
		sec.Acquire(ready, "holder")
		sec.WaitForAccess(lock, "waiter")

		h := s.entity("holder")
		rec := h.received[s.ids["waiter"]]
		rec.origin = ready
		h.received[s.ids["waiter"]] = rec

		var ce *ConsistencyError
		require.ErrorAs(t, sec.Verify(), &ce)
	})
}

type recordingHook struct {
	nopHook
	inconsistencies int
}

func (h *recordingHook) OnInconsistency(error) { h.inconsistencies++ }

type nopHook struct{}

func (nopHook) OnWait(QueueID, string)                {}
func (nopHook) OnDequeue(QueueID, string)             {}
func (nopHook) OnRemove(QueueID, string)              {}
func (nopHook) OnDonate(QueueID, string, string, int) {}
func (nopHook) OnRevoke(QueueID, string, string)      {}
func (nopHook) OnEffectivePriority(string, int, int)  {}
func (nopHook) OnInconsistency(error)                 {}

func TestConsistencyChecks_ReportOnDequeue(t *testing.T) {
	t.Parallel()

	var reported []error
	hook := &recordingHook{}
	s := New(Policies.Lottery,
		WithMetricsHook[string](hook),
		WithConsistencyChecks[string](func(err error) {
			reported = append(reported, err)
		}),
	)
	s.Do(func(sec *Section[string]) {
		q := sec.NewQueue(true)
		sec.WaitForAccess(q, "w")

		s.entity("w").priority = 50

		got, ok := sec.NextThread(q)
		require.True(t, ok)
		require.Equal(t, "w", got)
	})

	require.NotEmpty(t, reported)
	require.Equal(t, len(reported), hook.inconsistencies)

	var ce *ConsistencyError
	require.ErrorAs(t, reported[0], &ce)
	require.Equal(t, "w", ce.Entity)
}

func TestConsistencyChecks_Disabled(t *testing.T) {
	t.Parallel()

	s := New[string](Policies.Lottery)
	s.Do(func(sec *Section[string]) {
		q := sec.NewQueue(true)
		sec.WaitForAccess(q, "w")
		s.entity("w").priority = 50

		// Nothing observes the corruption until Verify is called.
		_, ok := sec.NextThread(q)
		require.True(t, ok)
		require.Error(t, sec.Verify())
	})
}
