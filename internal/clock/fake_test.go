package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	c := NewFakeClock(start)

	assert.Equal(t, time.UTC, c.Now().Location())
	c.Advance(48 * time.Hour)
	assert.Equal(t, time.Date(2025, 1, 3, 1, 0, 0, 0, time.UTC), c.Now())

	c.Set(time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2030, c.Now().Year())
}
