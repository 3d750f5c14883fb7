package retry

import (
	"errors"
	"math"
	"math/rand"
	"time"

	"golang.org/x/exp/constraints"
)

// Strategy returns how long to sleep before retry n, and whether the retry
// budget is already exhausted.
type Strategy interface {
	Sleep(n uint) (time.Duration, bool)
}

type never struct{}

func NewNever() *never {
	return &never{}
}

func (*never) Sleep(uint) (time.Duration, bool) {
	return 0, true
}

// Entropy picks a duration in [0, n). Full jitter by default.
type Entropy func(n int64) int64

type exponentialBackOff struct {
	base          time.Duration
	max           time.Duration
	maxRetryCount uint
	entropy       Entropy
}

func NewExponentialBackOff(base time.Duration, max time.Duration, maxRetryCount uint, entropy Entropy) *exponentialBackOff {
	return &exponentialBackOff{
		base:          base,
		max:           max,
		maxRetryCount: maxRetryCount,
		entropy:       entropy,
	}
}

func (eb *exponentialBackOff) Sleep(retryCount uint) (time.Duration, bool) {
	if retryCount >= eb.maxRetryCount {
		return 0, true
	}

	ceiling := int64(eb.max)
	if retryCount < 63 {
		if delay, err := checkedMulInt64(1<<retryCount, int64(eb.base)); err == nil {
			ceiling = clamp(delay, 0, int64(eb.max))
		}
	}
	return time.Duration(eb.jitter(ceiling)), false
}

func (eb *exponentialBackOff) jitter(ceiling int64) int64 {
	if eb.entropy != nil {
		return eb.entropy(ceiling)
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.Int63n(ceiling)
}

func clamp[T constraints.Ordered](v T, lo T, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var OverflowError = errors.New("overflow")

// checkedMulInt64 multiplies two non-negative values.
func checkedMulInt64(l int64, r int64) (int64, error) {
	if l == 0 || r == 0 {
		return 0, nil
	}
	if l > math.MaxInt64/r {
		return 0, OverflowError
	}
	return l * r, nil
}
