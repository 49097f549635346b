// Package workerpool runs a function over a slice of items with a fixed
// number of workers.
package workerpool

import (
	"context"
	"sync"
)

// Result pairs an item's output with its error. Results are returned in the
// same order as the input items.
type Result[R any] struct {
	Value R
	Err   error
}

// Map calls fn for every item using up to workers goroutines and collects
// every result. Items not started before ctx is cancelled get ctx's error.
func Map[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, T) (R, error)) []Result[R] {
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}
	workers = max(1, min(workers, len(items)))

	next := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				v, err := fn(ctx, items[i])
				results[i] = Result[R]{Value: v, Err: err}
			}
		}()
	}

feed:
	for i := range items {
		select {
		case next <- i:
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				results[j].Err = ctx.Err()
			}
			break feed
		}
	}
	close(next)
	wg.Wait()

	return results
}
