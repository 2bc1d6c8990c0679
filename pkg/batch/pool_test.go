package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"rtstructgen/internal/models"
	"rtstructgen/pkg/fault"
)

func makeCases(n int) []models.PatientCase {
	cases := make([]models.PatientCase, n)
	for i := range cases {
		cases[i] = models.PatientCase{PatientID: fmt.Sprintf("%03d", i+1), Phase: "PRE"}
	}
	return cases
}

func succeed(_ context.Context, c models.PatientCase) models.ProcessingResult {
	return models.ProcessingResult{PatientID: c.PatientID, Phase: c.Phase, Success: true}
}

func TestRunCasesKeepsInputOrder(t *testing.T) {
	cases := makeCases(20)
	var calls int32
	results, err := RunCases(context.Background(), cases, 4, func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
		atomic.AddInt32(&calls, 1)
		time.Sleep(time.Millisecond)
		return succeed(ctx, c)
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, len(cases))
	assert.EqualValues(t, len(cases), calls)
	for i, r := range results {
		assert.Equal(t, cases[i].PatientID, r.PatientID)
		assert.True(t, r.Success)
	}
}

func TestRunCasesRecoversPanics(t *testing.T) {
	cases := makeCases(3)
	var seen []string
	results, err := RunCases(context.Background(), cases, 2, func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
		if c.PatientID == "002" {
			panic("boom")
		}
		return succeed(ctx, c)
	}, func(r models.ProcessingResult) { seen = append(seen, r.PatientID) })
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, fault.UnexpectedFault, results[1].Kind)
	assert.Equal(t, "002", results[1].PatientID)
	assert.Contains(t, results[1].Message, "boom")
	assert.True(t, results[2].Success)
	assert.Len(t, seen, 3)
}

func TestRunCasesCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	results, err := RunCases(ctx, makeCases(5), 2, func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
		atomic.AddInt32(&calls, 1)
		return succeed(ctx, c)
	}, nil)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Zero(t, calls)
	for _, r := range results {
		assert.Equal(t, fault.Cancelled, r.Kind)
		assert.Equal(t, "failure: Cancelled (not started): context canceled", r.Status())
	}
}

func TestRunCasesCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	var started int32
	done := make(chan []models.ProcessingResult)
	go func() {
		results, _ := RunCases(ctx, makeCases(10), 1, func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
			if atomic.AddInt32(&started, 1) == 1 {
				cancel()
				<-release
			}
			return succeed(ctx, c)
		}, nil)
		done <- results
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&started) == 1 }, time.Second, time.Millisecond)
	close(release)
	results := <-done

	require.Len(t, results, 10)
	assert.True(t, results[0].Success, "running case finishes")
	cancelled := 0
	for _, r := range results {
		if r.Kind == fault.Cancelled {
			cancelled++
		}
	}
	// one worker: at most the case already queued behind the first one runs
	assert.GreaterOrEqual(t, cancelled, 8)
}

func TestRunCasesResultCountProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 30).Draw(rt, "cases")
		workers := rapid.IntRange(0, 8).Draw(rt, "workers")
		panics := rapid.SliceOfN(rapid.Bool(), n, n).Draw(rt, "panics")

		cases := makeCases(n)
		results, err := RunCases(context.Background(), cases, workers, func(ctx context.Context, c models.PatientCase) models.ProcessingResult {
			var idx int
			fmt.Sscanf(c.PatientID, "%d", &idx)
			if panics[idx-1] {
				panic("injected")
			}
			return succeed(ctx, c)
		}, nil)
		if err != nil {
			rt.Fatalf("RunCases: %v", err)
		}
		if len(results) != n {
			rt.Fatalf("got %d results for %d cases", len(results), n)
		}
		for i, r := range results {
			if r.PatientID != cases[i].PatientID {
				rt.Fatalf("result %d is for %s, want %s", i, r.PatientID, cases[i].PatientID)
			}
			if r.Success == panics[i] {
				rt.Fatalf("result %d success=%v with panic=%v", i, r.Success, panics[i])
			}
		}
	})
}
