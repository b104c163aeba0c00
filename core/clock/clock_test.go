package clock_test

import (
	"testing"
	"time"

	"github.com/relabs-tech/sastoken/core/clock"
	"github.com/stretchr/testify/assert"
)

func TestFake(t *testing.T) {
	t0 := time.Unix(1700000000, 0)
	c := clock.Fake(t0)
	assert.Equal(t, t0, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, int64(1700000090), c.Now().Unix())

	c.Set(t0)
	assert.Equal(t, t0, c.Now())
}

func TestReal(t *testing.T) {
	before := time.Now()
	now := clock.Real().Now()
	assert.False(t, now.Before(before))
}
