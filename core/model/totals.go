package model

import (
	"time"

	"gonum.org/v1/gonum/floats"
)

// SumByChannel sums the readings of each channel. Totals keep the order in
// which channels first appear in ms.
func SumByChannel(day time.Time, ms []Measurement) []DailyTotal {
	type acc struct {
		unit   string
		values []float64
	}
	var order []string
	byChannel := make(map[string]*acc)
	for _, m := range ms {
		a, ok := byChannel[m.Channel]
		if !ok {
			a = &acc{unit: m.Unit}
			byChannel[m.Channel] = a
			order = append(order, m.Channel)
		}
		a.values = append(a.values, m.Value)
	}
	out := make([]DailyTotal, 0, len(order))
	for _, ch := range order {
		a := byChannel[ch]
		out = append(out, DailyTotal{
			Day:     day,
			Channel: ch,
			Unit:    a.unit,
			Value:   floats.Sum(a.values),
			Samples: len(a.values),
		})
	}
	return out
}
