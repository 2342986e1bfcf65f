package aggregation

import (
	"github.com/distrischool/grade-service/internal/domain/model"
	"github.com/shopspring/decimal"
)

// GlobalAverage averages per-student averages across every class. Each
// student's average is taken over their selected grades, as in a class
// summary. There is no roster at this scope.
func GlobalAverage(grades []model.Grade, limit int) decimal.Decimal {
	limit = ClampCap(limit)
	groups := groupByStudent(grades)

	present := make([]decimal.Decimal, 0, len(groups.order))
	for _, id := range groups.order {
		if avg := Average(Select(groups.grades[id], limit)); avg.Valid {
			present = append(present, avg.Decimal)
		}
	}
	return meanOf(present)
}
