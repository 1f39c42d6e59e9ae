package scanjob

import (
	"context"
	"encoding/base64"
	"time"
)

// simFilename is the fixed filename reported by the simulated backend.
const simFilename = "test_scan.png"

// placeholderPNG is a 1x1 transparent PNG, the fixed payload delivered by
// the simulated test device.
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// simulatedBackend drives the no-hardware path for the synthetic test
// device: timed progress steps, then the placeholder payload. To a client it
// is indistinguishable from a real scan except in timing.
type simulatedBackend struct {
	stepDelay time.Duration
}

func newSimulatedBackend(stepDelay time.Duration) *simulatedBackend {
	return &simulatedBackend{stepDelay: stepDelay}
}

func (b *simulatedBackend) run(ctx context.Context, progress func(int)) (*result, error) {
	for p := 0; p <= 100; p += 10 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		progress(p)

		if p == 100 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.stepDelay):
		}
	}

	image, err := base64.StdEncoding.DecodeString(placeholderPNG)
	if err != nil {
		return nil, err
	}
	return &result{image: image, filename: simFilename}, nil
}
