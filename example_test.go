package donsched_test

import (
	"fmt"

	"github.com/tomasbasham/donsched"
)

func ExampleScheduler() {
	s := donsched.New[string](donsched.Policies.Priority)

	s.Do(func(sec *donsched.Section[string]) {
		lock := sec.NewQueue(true)
		sec.Acquire(lock, "low")

		_ = sec.SetPriority("high", 7)
		sec.WaitForAccess(lock, "high")
		fmt.Println(sec.Snapshot(lock))
		fmt.Println("low runs at", sec.GetEffectivePriority("low"))

		next, _ := sec.NextThread(lock)
		fmt.Println(next, "holds the lock, low runs at", sec.GetEffectivePriority("low"))
	})
	// Output:
	// queue 0 (priority) transfer=true holder=low -->high(7/7)
	// low runs at 7
	// high holds the lock, low runs at 1
}

func ExampleWithSeed() {
	s := donsched.New(donsched.Policies.Lottery, donsched.WithSeed[int](1))

	s.Do(func(sec *donsched.Section[int]) {
		ready := sec.NewQueue(false)
		for i := range 3 {
			_ = sec.SetPriority(i, 10*(i+1))
			sec.WaitForAccess(ready, i)
		}

		// The pick is cached until the queue or a waiting weight changes.
		picked, _ := sec.PickNextThread(ready)
		next, _ := sec.NextThread(ready)
		fmt.Println(picked == next)
	})
	// Output: true
}
