package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{
		"hourly": PeriodHourly,
		"H":      PeriodHourly,
		"":       PeriodDaily,
		"day":    PeriodDaily,
		"mo":     PeriodMonthly,
	} {
		got, err := ParsePeriod(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePeriod("fortnightly")
	assert.Error(t, err)
}

func TestConversions(t *testing.T) {
	assert.InDelta(t, 73.0, ToMonthly(0.1, PeriodHourly), 1e-9)
	assert.Equal(t, 300.0, ToMonthly(10, PeriodDaily))
	assert.Equal(t, 50.0, ToMonthly(50, PeriodMonthly))

	assert.InDelta(t, 2.4, ToDaily(0.1, PeriodHourly), 1e-9)
	assert.Equal(t, 10.0, ToDaily(10, PeriodDaily))
	assert.Equal(t, 3.0, ToDaily(90, PeriodMonthly))
}
