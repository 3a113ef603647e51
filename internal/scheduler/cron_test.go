package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCronMatches(t *testing.T) {
	tests := []struct {
		expr string
		t    string
		want bool
	}{
		{"*/15 * * * *", "2025-01-01 10:45", true},
		{"*/15 * * * *", "2025-01-01 10:46", false},
		{"5/20 * * * *", "2025-01-01 10:25", true},
		{"5/20 * * * *", "2025-01-01 10:05", true},
		{"5/20 * * * *", "2025-01-01 10:20", false},
		{"0 9-17/4 * * *", "2025-01-01 13:00", true},
		{"0 9-17/4 * * *", "2025-01-01 15:00", false},
		{"0,30 * * * *", "2025-01-01 08:30", true},
		{"0 9 * * mon-fri", "2025-01-06 09:00", true},
		{"0 9 * * mon-fri", "2025-01-05 09:00", false},
		{"0 0 * * 7", "2025-01-05 00:00", true},
		{"0 0 * * 0", "2025-01-05 00:00", true},
		{"0 0 L * *", "2024-02-29 00:00", true},
		{"0 0 L * *", "2024-02-28 00:00", false},
		{"0 0 L * *", "2025-02-28 00:00", true},
		{"0 0 15,L * *", "2025-04-15 00:00", true},
		{"0 0 * * fri#2", "2025-01-10 00:00", true},
		{"0 0 * * fri#2", "2025-01-03 00:00", false},
		{"0 0 * * fri#2", "2025-01-17 00:00", false},
		{"0 0 * * 5#1,sun", "2025-01-03 00:00", true},
		{"0 0 * * 5#1,sun", "2025-01-05 00:00", true},
		{"0 12 * jun-aug sun", "2025-07-06 12:00", true},
		{"0 12 * jun-aug sun", "2025-01-05 12:00", false},
		{"0 0 1 jan * 2026", "2026-01-01 00:00", true},
		{"0 0 1 jan * 2026", "2025-01-01 00:00", false},
		// day and day_of_week must both match
		{"0 0 13 * fri", "2025-06-13 00:00", true},
		{"0 0 13 * fri", "2025-05-13 00:00", false},
		{"0 0 13 * fri", "2025-06-20 00:00", false},
		{"30", "2025-03-03 07:30", true},
		{"30", "2025-03-03 07:31", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr+"@"+tt.t, func(t *testing.T) {
			c, err := ParseExpr(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Matches(at(tt.t)))
		})
	}
}

func TestCronParseErrors(t *testing.T) {
	tests := []struct {
		expr  string
		field string
	}{
		{"60 * * * *", "minute"},
		{"* 24 * * *", "hour"},
		{"* * 0 * *", "day"},
		{"* * 32 * *", "day"},
		{"* * * 13 * *", "month"},
		{"* * * foo *", "month"},
		{"* * * * 8", "day_of_week"},
		{"* * * * mon#6", "day_of_week"},
		{"* * * * * 1969", "year"},
		{"*/0 * * * *", "minute"},
		{"5-1 * * * *", "minute"},
		{"a * * * *", "minute"},
		{"1,,2 * * * *", "minute"},
		{"* * L#2 * *", "day"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := ParseExpr(tt.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidSchedule)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}

	_, err := ParseExpr("* * * * * * *")
	assert.ErrorIs(t, err, ErrInvalidSchedule)
	_, err = ParseExpr("")
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestCronNext(t *testing.T) {
	tests := []struct {
		expr  string
		after string
		want  string
	}{
		{"0 0 * * *", "2025-01-01 00:00", "2025-01-02 00:00"},
		{"*/10 * * * *", "2025-01-01 10:01", "2025-01-01 10:10"},
		{"0 0 L * *", "2025-01-31 23:59", "2025-02-28 00:00"},
		{"0 0 29 2 *", "2025-03-01 00:00", "2028-02-29 00:00"},
		{"0 9 * * fri#2", "2025-01-01 00:00", "2025-01-10 09:00"},
		{"15 3 * * * 2027", "2025-06-01 00:00", "2027-01-01 03:15"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			c, err := ParseExpr(tt.expr)
			require.NoError(t, err)
			next, ok := c.Next(at(tt.after))
			require.True(t, ok)
			assert.Equal(t, at(tt.want), next)
		})
	}

	t.Run("nothing within five years", func(t *testing.T) {
		c, err := ParseExpr("0 0 1 1 * 2020")
		require.NoError(t, err)
		_, ok := c.Next(at("2025-01-01 00:00"))
		assert.False(t, ok)

		c, err = ParseExpr("0 0 1 1 * 2035")
		require.NoError(t, err)
		_, ok = c.Next(at("2025-01-01 00:00"))
		assert.False(t, ok)
	})
}

func TestCronSimulatedClock(t *testing.T) {
	c, err := ParseExpr("0 0 * * * *")
	require.NoError(t, err)

	start := at("2025-01-01 00:30")
	fires := 0
	for m := 0; m < 72*60; m++ {
		if c.Matches(start.Add(time.Duration(m) * time.Minute)) {
			fires++
		}
	}
	assert.Equal(t, 3, fires)
}
