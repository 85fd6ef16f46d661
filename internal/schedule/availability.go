package schedule

import (
	"iter"
	"time"

	"github.com/Freeeeeet/tuition_scheduler/internal/model"
)

// Window кандидат на слот внутри блока доступности
type Window struct {
	Date time.Time
	Interval
}

func (w Window) StartTime() string { return ToTimeString(w.Start) }
func (w Window) EndTime() string   { return ToTimeString(w.End) }

// Windows возвращает окна длиной durationMinutes подряд от начала блока.
// Хвост короче durationMinutes не выдаётся. Если день недели даты не совпадает
// с днём блока, последовательность пустая.
func Windows(block *model.WeeklyAvailabilityBlock, date time.Time, durationMinutes int) iter.Seq[Window] {
	return func(yield func(Window) bool) {
		if block == nil || durationMinutes <= 0 || date.Weekday() != block.Weekday {
			return
		}
		if block.DurationMinutes() < durationMinutes {
			return
		}

		for start := block.StartMinutes; start+durationMinutes <= block.EndMinutes; start += durationMinutes {
			w := Window{
				Date:     date,
				Interval: Interval{Start: start, End: start + durationMinutes},
			}
			if !yield(w) {
				return
			}
		}
	}
}
