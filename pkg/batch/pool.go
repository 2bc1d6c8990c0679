package batch

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/fault"
)

// CaseFunc processes one case. It should report failures in the result rather
// than panic; panics are still recovered.
type CaseFunc func(ctx context.Context, c models.PatientCase) models.ProcessingResult

// RunCases runs fn over cases on a fixed-size worker pool and returns one
// result per case, in input order. done, when set, is called once per result
// as it becomes available and is never called concurrently.
//
// Once ctx is cancelled no further cases are submitted; those cases get a
// Cancelled result. Cases already running are left to finish.
func RunCases(ctx context.Context, cases []models.PatientCase, workers int, fn CaseFunc, done func(models.ProcessingResult)) ([]models.ProcessingResult, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make([]models.ProcessingResult, len(cases))
	submitted := make([]bool, len(cases))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	report := func(i int, res models.ProcessingResult) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = res
		if done != nil {
			done(res)
		}
	}

	for i, c := range cases {
		if ctx.Err() != nil {
			break
		}
		i, c := i, c
		wg.Add(1)
		submitted[i] = true
		err := pool.Submit(func() {
			defer wg.Done()
			report(i, runSafely(ctx, c, fn))
		})
		if err != nil {
			wg.Done()
			report(i, failed(c, fault.Wrap(fault.UnexpectedFault, err, "(submit)"), 0))
		}
	}
	wg.Wait()

	for i, c := range cases {
		if !submitted[i] {
			report(i, failed(c, &fault.Error{Kind: fault.Cancelled, Msg: "(not started)", Err: ctx.Err()}, 0))
		}
	}
	return results, nil
}

func runSafely(ctx context.Context, c models.PatientCase, fn CaseFunc) (res models.ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			res = failed(c, &fault.Error{Kind: fault.UnexpectedFault, Stage: "worker", Msg: fmt.Sprintf("panic: %v", r)}, 0)
		}
	}()
	return fn(ctx, c)
}
