package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultStrategy(t *testing.T) {
	s := DefaultStrategy()

	assert.Equal(t, 10*time.Second, s.BaseDelay)
	assert.Equal(t, 300*time.Second, s.MaxDelay)
	assert.Equal(t, 2.0, s.ExponentialBase)
}

func TestStrategy_Delay(t *testing.T) {
	s := DefaultStrategy()

	tests := []struct {
		name       string
		retryCount int
		expected   time.Duration
	}{
		{"Zero count falls back to base", 0, 10 * time.Second},
		{"Negative count falls back to base", -1, 10 * time.Second},
		{"First retry", 1, 20 * time.Second},
		{"Second retry", 2, 40 * time.Second},
		{"Third retry", 3, 80 * time.Second},
		{"Fourth retry", 4, 160 * time.Second},
		{"Fifth retry hits the cap", 5, 300 * time.Second},
		{"Far beyond the cap", 20, 300 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.Delay(tt.retryCount))
		})
	}
}

func TestStrategy_Delay_Monotonic(t *testing.T) {
	s := DefaultStrategy()

	prev := time.Duration(0)
	for i := 1; i <= 10; i++ {
		d := s.Delay(i)
		assert.GreaterOrEqual(t, d, prev, "delay must never shrink as retries accumulate")
		assert.LessOrEqual(t, d, s.MaxDelay)
		prev = d
	}
}

func TestStrategy_Delay_CustomBase(t *testing.T) {
	s := Strategy{
		BaseDelay:       time.Second,
		MaxDelay:        time.Minute,
		ExponentialBase: 3.0,
	}

	assert.Equal(t, 3*time.Second, s.Delay(1))
	assert.Equal(t, 9*time.Second, s.Delay(2))
	assert.Equal(t, 27*time.Second, s.Delay(3))
	assert.Equal(t, time.Minute, s.Delay(4)) // 81s capped
}

func TestStrategy_Schedule(t *testing.T) {
	s := DefaultStrategy()
	schedule := s.Schedule(3)

	// Budget of 3: two delayed retries, then dead letter
	assert.Contains(t, schedule, "Retry 1: after 20s")
	assert.Contains(t, schedule, "Retry 2: after 40s")
	assert.NotContains(t, schedule, "Retry 3")
	assert.Contains(t, schedule, "Dead letter")
}
