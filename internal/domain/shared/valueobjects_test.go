package shared

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-09-01")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.September, 1), d)
	assert.Equal(t, "2024-09-01", d.String())

	_, err = ParseDate("01.09.2024")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ParseDate("  ")
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestDateOf_UsesLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	late := time.Date(2024, 9, 30, 23, 30, 0, 0, loc)

	assert.Equal(t, NewDate(2024, 9, 30), DateOf(late))
	assert.Equal(t, NewDate(2024, 9, 30), DateOf(late.In(loc)))
	assert.Equal(t, NewDate(2024, 9, 30), DateOf(late.UTC()))
}

func TestDate_Arithmetic(t *testing.T) {
	d := NewDate(2024, 2, 27)

	assert.Equal(t, NewDate(2024, 3, 1), d.AddDays(3))
	assert.Equal(t, 3, d.DaysUntil(NewDate(2024, 3, 1)))
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.Before(d))
	assert.True(t, d.Equal(NewDate(2024, 2, 27)))
}

func TestDate_JSONRoundTrip(t *testing.T) {
	type wrapper struct {
		Deadline Date `json:"deadline"`
		Unset    Date `json:"unset"`
	}

	data, err := json.Marshal(wrapper{Deadline: NewDate(2024, 12, 25)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"deadline":"2024-12-25","unset":""}`, string(data))

	var back wrapper
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Deadline.Equal(NewDate(2024, 12, 25)))
	assert.True(t, back.Unset.IsZero())
}

func TestDomainError_WrapMatchesSentinel(t *testing.T) {
	sentinel := NewDomainError("roster", "Find", ErrNotFound, "missing")
	wrapped := sentinel.Wrap(assert.AnError)

	assert.ErrorIs(t, wrapped, sentinel)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.ErrorIs(t, wrapped, assert.AnError)
	assert.True(t, IsNotFound(sentinel.Withf("x")))
	assert.False(t, IsConfiguration(wrapped))
}
