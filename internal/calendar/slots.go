package calendar

import "time"

// Slot is a candidate start time inside a working-hours window.
type Slot struct {
	Start Clock
	End   Clock
}

func (s Slot) Time() string    { return s.Start.String() }
func (s Slot) Display() string { return s.Start.Display() }

// GenerateSlots walks w from its opening time, stepping by duration+interval
// minutes. A candidate that would end after closing time is not emitted.
func GenerateSlots(w Window, duration, interval int) []Slot {
	if duration <= 0 || w.End <= w.Start {
		return nil
	}
	if interval < 0 {
		interval = 0
	}

	length := time.Duration(duration) * time.Minute
	step := time.Duration(duration+interval) * time.Minute

	var slots []Slot
	for start := w.Start; start.Add(length) <= w.End; start = start.Add(step) {
		slots = append(slots, Slot{Start: start, End: start.Add(length)})
	}
	return slots
}

// GenerateDaySlots concatenates the slots of each window in window order.
func GenerateDaySlots(windows []Window, duration, interval int) []Slot {
	var slots []Slot
	for _, w := range windows {
		slots = append(slots, GenerateSlots(w, duration, interval)...)
	}
	return slots
}
