package lending_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/branchlib/lending-go/lending"
)

func Test_DateOf_TruncatesToUTCCalendarDate(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			name:     "midnight_utc_is_unchanged",
			input:    time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			expected: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "time_of_day_is_dropped",
			input:    time.Date(2025, 3, 10, 23, 59, 59, 999, time.UTC),
			expected: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "offset_zone_is_normalized_to_utc",
			input:    time.Date(2025, 3, 10, 22, 0, 0, 0, time.FixedZone("west", -5*60*60)),
			expected: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, lending.DateOf(tc.input))
		})
	}
}

func Test_DueDateFor_AddsTheLoanPeriod(t *testing.T) {
	opened := time.Date(2025, 1, 20, 14, 30, 0, 0, time.UTC)

	dueDate := lending.DueDateFor(opened)

	assert.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), dueDate)
}

func Test_LateDays(t *testing.T) {
	dueDate := time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		effectiveClose time.Time
		expected       int
	}{
		{
			name:           "closed_before_due_date_is_not_late",
			effectiveClose: time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC),
			expected:       0,
		},
		{
			name:           "closed_on_due_date_is_not_late",
			effectiveClose: time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC),
			expected:       0,
		},
		{
			name:           "closed_one_day_after_due_date",
			effectiveClose: time.Date(2025, 2, 4, 0, 0, 0, 0, time.UTC),
			expected:       1,
		},
		{
			name:           "closed_ten_days_after_due_date",
			effectiveClose: time.Date(2025, 2, 13, 0, 0, 0, 0, time.UTC),
			expected:       10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, lending.LateDays(dueDate, tc.effectiveClose))
		})
	}
}

func Test_FineAmountFor_UsesTheDailyRate(t *testing.T) {
	assert.Equal(t, 0.0, lending.FineAmountFor(0))
	assert.Equal(t, 0.25, lending.FineAmountFor(1))
	assert.Equal(t, 0.75, lending.FineAmountFor(3))
	assert.Equal(t, 2.5, lending.FineAmountFor(10))
}

func Test_Loan_IsOpen(t *testing.T) {
	opened := time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)
	closed := time.Date(2025, 1, 25, 0, 0, 0, 0, time.UTC)

	openLoan := lending.Loan{ID: 1, DateOpened: opened, DueDate: lending.DueDateFor(opened)}
	closedLoan := lending.Loan{ID: 2, DateOpened: opened, DueDate: lending.DueDateFor(opened), DateClosed: &closed}

	assert.True(t, openLoan.IsOpen())
	assert.False(t, closedLoan.IsOpen())
}
