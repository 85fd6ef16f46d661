// Package schedule содержит чистую логику расписания: арифметику времени,
// развёртку недельной доступности и регулярных занятий, проверку пересечений
// и переходы статусов слота. Пакет не делает I/O.
package schedule

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/tuition_scheduler/internal/errs"
	"github.com/Freeeeeet/tuition_scheduler/internal/model"
)

const (
	minutesPerDay = 24 * 60

	msgInvalidTimeFormat = "invalid time format"
)

// ErrInvalidTimeFormat цель для errors.Is
var ErrInvalidTimeFormat = errs.Validation(msgInvalidTimeFormat)

// ToMinutes переводит "HH:MM" в минуты от полуночи
func ToMinutes(hhmm string) (int, error) {
	if len(hhmm) != 5 || hhmm[2] != ':' || !isDigit(hhmm[0]) || !isDigit(hhmm[1]) || !isDigit(hhmm[3]) || !isDigit(hhmm[4]) {
		return 0, errs.Validation(msgInvalidTimeFormat).Arg("value", hhmm)
	}

	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	if h > 23 || m > 59 {
		return 0, errs.Validation(msgInvalidTimeFormat).Arg("value", hhmm)
	}

	return h*60 + m, nil
}

// ToTimeString переводит минуты от полуночи в "HH:MM"
func ToTimeString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseRange разбирает пару "HH:MM" и проверяет, что начало раньше конца
func ParseRange(start, end string) (Interval, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Interval{}, err
	}
	if s >= e {
		return Interval{}, errs.Validation("start time must be before end time").
			Arg("start_time", start).
			Arg("end_time", end)
	}
	return Interval{Start: s, End: e}, nil
}

// ParseDate разбирает дату YYYY-MM-DD
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, errs.Validation("invalid date format").Arg("value", value).Wrap(err)
	}
	return d, nil
}

// DateOf возвращает календарную дату момента t в зоне loc как полночь UTC
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
