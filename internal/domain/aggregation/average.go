package aggregation

import (
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Average returns the mean of the non-null grade values rounded half-up to
// two places. With no non-null value the result is invalid (absent).
func Average(grades []model.Grade) decimal.NullDecimal {
	sum := decimal.Zero
	var count int64
	for _, g := range grades {
		if g.Value == nil {
			continue
		}
		sum = sum.Add(*g.Value)
		count++
	}
	if count == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Decimal: sum.DivRound(decimal.NewFromInt(count), Scale),
		Valid:   true,
	}
}
