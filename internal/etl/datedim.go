package etl

import (
	"strconv"
	"time"

	"github.com/dvloznov/banking-analytics/internal/domain"
)

// CreateDateDimension returns one row per calendar day in [start, end].
// It returns nil when end is before start.
func CreateDateDimension(start, end time.Time) []domain.DateDimRow {
	start, end = dateOf(start), dateOf(end)
	if end.Before(start) {
		return nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	rows := make([]domain.DateDimRow, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		_, week := d.ISOWeek()
		rows = append(rows, domain.DateDimRow{
			DateKey:    DateKey(d),
			Date:       d,
			Year:       d.Year(),
			Quarter:    (int(d.Month())-1)/3 + 1,
			Month:      int(d.Month()),
			MonthName:  d.Month().String(),
			Week:       week,
			DayOfMonth: d.Day(),
			DayOfWeek:  isoWeekday(d),
			DayName:    d.Weekday().String(),
			IsWeekend:  d.Weekday() == time.Saturday || d.Weekday() == time.Sunday,
		})
	}
	return rows
}

// DateKey formats t's calendar date as the integer YYYYMMDD.
func DateKey(t time.Time) int {
	k, _ := strconv.Atoi(t.Format("20060102"))
	return k
}

func isoWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return 7
	}
	return int(t.Weekday())
}
