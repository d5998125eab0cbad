package procure_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/adukes40/ReqPath/procure"
)

func TestItemTotal(t *testing.T) {
	cases := []struct {
		name  string
		price *decimal.Decimal
		qty   int
		want  string
	}{
		{"nil price", nil, 5, "0"},
		{"whole", decPtr("100"), 3, "300"},
		{"cents", decPtr("19.99"), 7, "139.93"},
		{"sub-cent precision kept", decPtr("0.125"), 3, "0.375"},
		{"zero price", decPtr("0"), 10, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := procure.ItemTotal(tc.price, tc.qty)
			if !got.Equal(dec(tc.want)) {
				t.Errorf("ItemTotal = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestComputeTotal_EmptyIsZero(t *testing.T) {
	if got := procure.ComputeTotal(nil); !got.Equal(decimal.Zero) {
		t.Errorf("ComputeTotal(nil) = %s", got)
	}
}

func TestComputeTotal_SumsItemTotals(t *testing.T) {
	items := []procure.LineItem{
		{TotalPrice: dec("10.10")},
		{TotalPrice: dec("0.90")},
		{TotalPrice: dec("5")},
	}
	if got, want := procure.ComputeTotal(items), dec("16"); !got.Equal(want) {
		t.Errorf("ComputeTotal = %s, want %s", got, want)
	}
}
