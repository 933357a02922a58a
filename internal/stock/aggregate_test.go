package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregateBuildsNestedSnapshot(t *testing.T) {
	t.Parallel()

	input := [][]Result{
		{
			{SKU: "RTX-5080-A", Province: "Ontario", Location: "Waterloo", Quantity: 2},
			{SKU: "RTX-5080-A", Province: "Ontario", Location: "Ottawa", Quantity: 1},
		},
		{
			{SKU: "RX-9070-B", Province: "British Columbia", Location: "Burnaby", Quantity: 4},
		},
	}

	snapshot := Aggregate(input)

	require.Len(t, snapshot, 2)
	require.Len(t, snapshot["Ontario"], 2)
	require.Equal(t, 2, snapshot["Ontario"]["Waterloo"]["RTX-5080-A"].Quantity)
	require.Equal(t, 4, snapshot["British Columbia"]["Burnaby"]["RX-9070-B"].Quantity)
}

func TestAggregateLastWriteWins(t *testing.T) {
	t.Parallel()

	first := []Result{{SKU: "RTX-5080-A", Province: "Ontario", Location: "Waterloo", Quantity: 2}}
	second := []Result{{SKU: "RTX-5080-A", Province: "Ontario", Location: "Waterloo", Quantity: 7}}

	snapshot := Aggregate([][]Result{first, second})

	require.Len(t, snapshot["Ontario"]["Waterloo"], 1)
	require.Equal(t, 7, snapshot["Ontario"]["Waterloo"]["RTX-5080-A"].Quantity)
}

func TestAggregateIsIdempotent(t *testing.T) {
	t.Parallel()

	input := [][]Result{
		{
			{SKU: "RTX-5080-A", Province: "Ontario", Location: "Waterloo", Quantity: 2},
			{SKU: "RX-9070-B", Province: "Ontario", Location: "Waterloo", Quantity: 1},
		},
	}

	require.Equal(t, Aggregate(input), Aggregate(input))
}

func TestAggregateEmptyInput(t *testing.T) {
	t.Parallel()

	require.True(t, Aggregate(nil).Empty())
	require.True(t, Aggregate([][]Result{{}, {}}).Empty())
	require.Empty(t, Aggregate([][]Result{{}, {}}))
}
