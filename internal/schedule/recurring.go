package schedule

import "time"

const (
	// DefaultBookingWindowMonths на сколько вперёд создаются слоты регулярного занятия
	DefaultBookingWindowMonths = 3
	// DefaultOpenEndedMonths горизонт для обучения без даты окончания
	DefaultOpenEndedMonths = 12
)

// RecurrenceParams входные данные развёртки регулярного занятия.
// Все даты - полночь UTC.
type RecurrenceParams struct {
	Weekday         time.Weekday
	EnrollmentStart time.Time
	EnrollmentEnd   *time.Time
	WindowMonths    int
	OpenEndedMonths int
	Today           time.Time
}

// FirstOccurrence первая дата с днём недели weekday начиная с from (включительно)
func FirstOccurrence(from time.Time, weekday time.Weekday) time.Time {
	shift := (int(weekday) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, shift)
}

// Horizon последняя допустимая дата: min(конец обучения, сегодня + окно бронирования)
func Horizon(p RecurrenceParams) time.Time {
	windowMonths := p.WindowMonths
	if windowMonths <= 0 {
		windowMonths = DefaultBookingWindowMonths
	}
	limit := p.Today.AddDate(0, windowMonths, 0)

	var end time.Time
	if p.EnrollmentEnd != nil {
		end = *p.EnrollmentEnd
	} else {
		openEnded := p.OpenEndedMonths
		if openEnded <= 0 {
			openEnded = DefaultOpenEndedMonths
		}
		base := p.EnrollmentStart
		if p.Today.After(base) {
			base = p.Today
		}
		end = base.AddDate(0, openEnded, 0)
	}

	if end.Before(limit) {
		return end
	}
	return limit
}

// ExpandRecurring возвращает даты еженедельных занятий по порядку.
// Даты раньше сегодняшней пропускаются, генерация останавливается после Horizon.
// Продление дальше горизонта - отдельная операция.
func ExpandRecurring(p RecurrenceParams) []time.Time {
	limit := Horizon(p)

	var dates []time.Time
	for d := FirstOccurrence(p.EnrollmentStart, p.Weekday); !d.After(limit); d = d.AddDate(0, 0, 7) {
		if d.Before(p.Today) {
			continue
		}
		dates = append(dates, d)
	}

	return dates
}

// WindowOccurrences все даты с днём недели weekday от today до конца окна бронирования.
// Результат ExpandRecurring с тем же Today и WindowMonths всегда входит в этот набор.
func WindowOccurrences(weekday time.Weekday, today time.Time, windowMonths int) []time.Time {
	if windowMonths <= 0 {
		windowMonths = DefaultBookingWindowMonths
	}
	limit := today.AddDate(0, windowMonths, 0)

	var dates []time.Time
	for d := FirstOccurrence(today, weekday); !d.After(limit); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}
