package schedule

// Interval полуоткрытый интервал [Start, End) в минутах от полуночи
type Interval struct {
	Start int
	End   int
}

func (i Interval) Minutes() int {
	return i.End - i.Start
}

// Overlaps строгое пересечение: касание границами пересечением не считается
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}
