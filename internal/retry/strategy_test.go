package retry_test

import (
	"fmt"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"snapshot-delta/internal/retry"
)

func identity(i int64) int64 {
	return i
}

func TestRetrySleep(t *testing.T) {
	type in struct {
		first uint
	}

	type want struct {
		first  time.Duration
		second bool
	}

	tests := []struct {
		name     string
		receiver retry.Strategy
		in       in
		want     want
	}{
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewNever(),
			in{
				0,
			},
			want{
				0,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(0, math.MaxInt64, 0, nil),
			in{
				0,
			},
			want{
				0,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Millisecond, 10*time.Second, 5, identity),
			in{
				0,
			},
			want{
				time.Millisecond,
				false,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Millisecond, 10*time.Second, 5, identity),
			in{
				3,
			},
			want{
				8 * time.Millisecond,
				false,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Millisecond, 10*time.Second, 5, identity),
			in{
				5,
			},
			want{
				0,
				true,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Second, 3*time.Second, 10, identity),
			in{
				4,
			},
			want{
				3 * time.Second,
				false,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Duration(math.MaxInt64/2), math.MaxInt64, 100, identity),
			in{
				2,
			},
			want{
				math.MaxInt64,
				false,
			},
		},
		{
			func() string {
				_, _, line, _ := runtime.Caller(1)
				return fmt.Sprintf("L%d", line)
			}(),
			retry.NewExponentialBackOff(time.Millisecond, time.Hour, 100, identity),
			in{
				70,
			},
			want{
				time.Hour,
				false,
			},
		},
	}

	for _, tt := range tests {
		name := tt.name
		receiver := tt.receiver
		in := tt.in
		want := tt.want
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			gotFirst, gotSecond := receiver.Sleep(in.first)
			if diff := cmp.Diff(want.first, gotFirst); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(want.second, gotSecond); diff != "" {
				t.Errorf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestRetrySleep_Jitter(t *testing.T) {
	strategy := retry.NewExponentialBackOff(10*time.Millisecond, time.Second, 10, nil)
	for i := 0; i < 100; i++ {
		sleep, exceeded := strategy.Sleep(2)
		if exceeded {
			t.Fatalf("Unexpected exhaustion")
		}
		if sleep < 0 || sleep >= 40*time.Millisecond {
			t.Fatalf("Expected sleep in [0, 40ms), got %s", sleep)
		}
	}
}
