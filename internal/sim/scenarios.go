package sim

import (
	"fmt"
	"io"

	"github.com/go-logr/logr"

	"github.com/tomasbasham/donsched"
)

// Scenario is a small scripted interaction with a scheduler that prints the
// queue and entity state it produces.
type Scenario struct {
	Name        string
	Description string
	Run         func(w io.Writer, logger logr.Logger) error
}

// Scenarios returns the built-in scenarios in a stable order.
func Scenarios() []Scenario {
	return []Scenario{
		{
			Name:        "ordering",
			Description: "priorities 7, 2 and 1 leave a plain queue highest first",
			Run:         ordering,
		},
		{
			Name:        "inversion",
			Description: "a waiting high priority entity lends its priority to the lock holder",
			Run:         inversion,
		},
		{
			Name:        "chain",
			Description: "a donation travels through two locks",
			Run:         chain,
		},
		{
			Name:        "lottery",
			Description: "seeded draws over tickets 1, 2 and 3",
			Run:         lottery,
		},
	}
}

// Lookup returns the scenario with the given name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

func ordering(w io.Writer, logger logr.Logger) error {
	s := donsched.New(donsched.Policies.Priority, donsched.WithLogger[string](logger))
	sec := s.Lock()
	defer sec.Unlock()

	q := sec.NewQueue(false)
	for _, e := range []struct {
		name     string
		priority int
	}{{"c", 1}, {"b", 2}, {"a", 7}} {
		if err := sec.SetPriority(e.name, e.priority); err != nil {
			return err
		}
		sec.WaitForAccess(q, e.name)
	}
	fmt.Fprintln(w, sec.Snapshot(q))

	for {
		v, ok := sec.NextThread(q)
		if !ok {
			break
		}
		fmt.Fprintf(w, "next: %s\n", v)
	}
	return sec.Verify()
}

func inversion(w io.Writer, logger logr.Logger) error {
	s := donsched.New(donsched.Policies.Priority, donsched.WithLogger[string](logger))
	sec := s.Lock()
	defer sec.Unlock()

	lock := sec.NewQueue(true)
	sec.Acquire(lock, "x")
	if err := sec.SetPriority("y", 7); err != nil {
		return err
	}
	sec.WaitForAccess(lock, "y")
	fmt.Fprintln(w, sec.Snapshot(lock))
	fmt.Fprintln(w, sec.Entity("x"))

	sec.NextThread(lock)
	fmt.Fprintln(w, sec.Snapshot(lock))
	fmt.Fprintln(w, sec.Entity("x"))
	return sec.Verify()
}

func chain(w io.Writer, logger logr.Logger) error {
	if err := chainWith(w, logger, donsched.Policies.Priority, 7); err != nil {
		return err
	}
	return chainWith(w, logger, donsched.Policies.Lottery, 100)
}

// chainWith lets z wait on a lock held by y, which waits on a lock held by x,
// then raises z to top.
func chainWith(w io.Writer, logger logr.Logger, p donsched.Policy, top int) error {
	s := donsched.New(p, donsched.WithLogger[string](logger))
	sec := s.Lock()
	defer sec.Unlock()

	lock1, lock2 := sec.NewQueue(true), sec.NewQueue(true)
	sec.Acquire(lock1, "x")
	sec.Acquire(lock2, "y")
	sec.WaitForAccess(lock1, "y")
	sec.WaitForAccess(lock2, "z")
	if err := sec.SetPriority("z", top); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s:\n", p)
	for _, v := range []string{"x", "y", "z"} {
		fmt.Fprintf(w, "  %s\n", sec.Entity(v))
	}
	return sec.Verify()
}

func lottery(w io.Writer, logger logr.Logger) error {
	s := donsched.New(donsched.Policies.Lottery,
		donsched.WithLogger[string](logger),
		donsched.WithSeed[string](1),
	)
	sec := s.Lock()
	defer sec.Unlock()

	q := sec.NewQueue(false)
	for i, name := range []string{"t1", "t2", "t3"} {
		if err := sec.SetPriority(name, i+1); err != nil {
			return err
		}
		sec.WaitForAccess(q, name)
	}

	counts := make(map[string]int)
	for range 600 {
		v, _ := sec.NextThread(q)
		counts[v]++
		sec.WaitForAccess(q, v)
	}
	for _, name := range []string{"t1", "t2", "t3"} {
		fmt.Fprintf(w, "%s: %d wins\n", name, counts[name])
	}
	return sec.Verify()
}
