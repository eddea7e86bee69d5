package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonotonicClock_NeverGoesBackwards(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	readings := []time.Time{base, base.Add(time.Second), base.Add(-time.Minute), base.Add(2 * time.Second)}
	i := 0
	clock := newMonotonicClock(func() time.Time {
		t := readings[i]
		i++
		return t
	})

	got := []time.Time{clock.Now(), clock.Now(), clock.Now(), clock.Now()}
	assert.Equal(t, base, got[0])
	assert.Equal(t, base.Add(time.Second), got[1])
	assert.Equal(t, base.Add(time.Second), got[2])
	assert.Equal(t, base.Add(2*time.Second), got[3])
}
