package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/distask/scheduler/pkg/scheduler/types"
)

// Foo sleeps for three seconds and prints, the reference's simplest body.
func Foo(ctx context.Context, t types.InFlight) error {
	timer := time.NewTimer(3 * time.Second)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}

	fmt.Printf("foo: task %s executed\n", t.ID)
	return nil
}

// Bar performs an HTTP GET against url and prints the resulting status
// code. url defaults to the original's
// https://www.whattimeisitrightnow.com/.
func Bar(url string) Handler {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, t types.InFlight) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("bar: build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("bar: request failed: %w", err)
		}
		defer resp.Body.Close()

		fmt.Printf("bar: task %s got status %d\n", t.ID, resp.StatusCode)
		return nil
	}
}

// Baz prints a random integer in [0, 344), the reference's upper bound.
func Baz(ctx context.Context, t types.InFlight) error {
	n := rand.Intn(344)
	fmt.Printf("baz: task %s rolled %d\n", t.ID, n)
	return nil
}
