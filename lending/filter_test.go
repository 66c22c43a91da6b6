package lending_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/branchlib/lending-go/lending"
)

func Test_FilterActiveLoans_Combinations(t *testing.T) {
	tests := []struct {
		name     string
		build    func() lending.ActiveLoanFilter
		validate func(t *testing.T, f lending.ActiveLoanFilter)
	}{
		{
			name: "empty_filter_matches_everything",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans()
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.True(t, f.IsEmpty())
				assert.Empty(t, f.ISBN())
				assert.Empty(t, f.CardID())
				assert.Empty(t, f.NameContains())
			},
		},
		{
			name: "book_only_filter",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans().WithBook("9780134190440")
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.False(t, f.IsEmpty())
				assert.Equal(t, "9780134190440", f.ISBN())
				assert.Empty(t, f.CardID())
				assert.Empty(t, f.NameContains())
			},
		},
		{
			name: "borrower_only_filter",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans().WithBorrower("ID000042")
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.False(t, f.IsEmpty())
				assert.Empty(t, f.ISBN())
				assert.Equal(t, "ID000042", f.CardID())
			},
		},
		{
			name: "name_substring_only_filter",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans().WithNameContaining("smith")
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.False(t, f.IsEmpty())
				assert.Equal(t, "smith", f.NameContains())
			},
		},
		{
			name: "all_constraints_combined",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans().
					WithBook("9780134190440").
					WithBorrower("ID000042").
					WithNameContaining("smith")
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.False(t, f.IsEmpty())
				assert.Equal(t, "9780134190440", f.ISBN())
				assert.Equal(t, "ID000042", f.CardID())
				assert.Equal(t, "smith", f.NameContains())
			},
		},
		{
			name: "constraints_are_trimmed",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans().
					WithBook("  9780134190440 ").
					WithBorrower(" ID000042").
					WithNameContaining(" smith ")
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.Equal(t, "9780134190440", f.ISBN())
				assert.Equal(t, "ID000042", f.CardID())
				assert.Equal(t, "smith", f.NameContains())
			},
		},
		{
			name: "blank_constraints_leave_the_filter_empty",
			build: func() lending.ActiveLoanFilter {
				return lending.FilterActiveLoans().
					WithBook("   ").
					WithBorrower("").
					WithNameContaining(" ")
			},
			validate: func(t *testing.T, f lending.ActiveLoanFilter) {
				assert.True(t, f.IsEmpty())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.validate(t, tc.build())
		})
	}
}

func Test_FilterActiveLoans_IsAValueType(t *testing.T) {
	base := lending.FilterActiveLoans().WithBook("9780134190440")

	narrowed := base.WithBorrower("ID000001")

	assert.Empty(t, base.CardID(), "narrowing must not mutate the original filter")
	assert.Equal(t, "ID000001", narrowed.CardID())
	assert.Equal(t, "9780134190440", narrowed.ISBN())
}
