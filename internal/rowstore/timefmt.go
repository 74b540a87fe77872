package rowstore

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeLayout — формат, в котором метки времени записываются в ячейки.
const TimeLayout = time.RFC3339

// serialEpoch — нулевой день серийных дат электронных таблиц.
var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

// FormatTime записывает метку времени в ячейку.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime разбирает метку времени из ячейки: RFC 3339, распространённые форматы
// или серийный номер даты электронной таблицы.
func ParseTime(cell string) (time.Time, bool) {
	s := strings.TrimSpace(cell)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 && serial < 1e6 {
		days := math.Floor(serial)
		frac := serial - days
		t := serialEpoch.AddDate(0, 0, int(days)).Add(time.Duration(math.Round(frac * 24 * 60 * 60 * float64(time.Second))))
		return t.Truncate(time.Second), true
	}

	return time.Time{}, false
}
