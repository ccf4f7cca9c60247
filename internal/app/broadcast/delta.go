package broadcast

import "github.com/satyaprakashdhfm/industrial-iot-pipeline-simulator/internal/domain"

// Delta returns the rows of next that have no field-for-field equal row in
// prev, in next's order. Rows are compared whole, never by ID alone, and
// distinct rows that happen to share values are all kept.
func Delta(prev, next []domain.Reading) []domain.Reading {
	out := make([]domain.Reading, 0, len(next))
	for _, r := range next {
		if !containsRow(prev, r) {
			out = append(out, r)
		}
	}
	return out
}

func containsRow(rows []domain.Reading, r domain.Reading) bool {
	for _, o := range rows {
		if o.Equal(r) {
			return true
		}
	}
	return false
}
