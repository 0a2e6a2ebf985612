package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WorkingHours maps a weekday to its open windows. A weekday present with no
// windows is explicitly closed; an absent weekday is unconfigured.
type WorkingHours map[time.Weekday][]Window

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "dom": time.Sunday, "domingo": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "seg": time.Monday, "segunda": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday, "ter": time.Tuesday, "terca": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "qua": time.Wednesday, "quarta": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday, "qui": time.Thursday, "quinta": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "sex": time.Friday, "sexta": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday, "sab": time.Saturday, "sabado": time.Saturday,
}

// Resolve returns the windows that apply on date's weekday, or nil when the
// day is closed or unconfigured. Holidays are the caller's concern.
func (wh WorkingHours) Resolve(date time.Time) []Window {
	windows := wh[date.Weekday()]
	if len(windows) == 0 {
		return nil
	}
	out := make([]Window, len(windows))
	copy(out, windows)
	return out
}

func (wh WorkingHours) Configured(day time.Weekday) bool {
	_, ok := wh[day]
	return ok
}

func (wh WorkingHours) IsEmpty() bool {
	return len(wh) == 0
}

func (wh WorkingHours) add(day time.Weekday, windows ...Window) {
	if _, ok := wh[day]; !ok {
		wh[day] = []Window{}
	}
	wh[day] = append(wh[day], windows...)
}

// ParseWeekday accepts ISO (1-7, Monday first), zero-based (0 = Sunday) or a
// weekday name.
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(key); err == nil {
		if n < 0 || n > 7 {
			return 0, fmt.Errorf("weekday out of range: %d", n)
		}
		return time.Weekday(n % 7), nil
	}
	if day, ok := weekdayNames[key]; ok {
		return day, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

type windowJSON struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Closed bool   `json:"closed,omitempty"`
}

// dayValueJSON is one weekday's hours: a start/end pair, a list of windows,
// or {"closed": true}.
type dayValueJSON struct {
	Start   string       `json:"start"`
	End     string       `json:"end"`
	Closed  bool         `json:"closed"`
	Windows []windowJSON `json:"windows"`
}

type dayEntryJSON struct {
	Day json.RawMessage `json:"day"`
	dayValueJSON
}

func (d dayValueJSON) decode() ([]Window, error) {
	if d.Closed {
		return nil, nil
	}
	list := d.Windows
	if d.Start != "" || d.End != "" {
		list = append([]windowJSON{{Start: d.Start, End: d.End}}, list...)
	}
	if list == nil {
		return nil, errors.New(`expected "start" and "end", "windows" or "closed"`)
	}
	return decodeWindows(list)
}

func decodeWindows(list []windowJSON) ([]Window, error) {
	out := make([]Window, 0, len(list))
	for _, w := range list {
		if w.Closed {
			continue
		}
		win, err := w.window()
		if err != nil {
			return nil, err
		}
		out = append(out, win)
	}
	return out, nil
}

func (w windowJSON) window() (Window, error) {
	start, err := parseBoundary(w.Start)
	if err != nil {
		return Window{}, fmt.Errorf("window start: %w", err)
	}
	end, err := parseBoundary(w.End)
	if err != nil {
		return Window{}, fmt.Errorf("window end: %w", err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("window %s-%s closes before it opens", w.Start, w.End)
	}
	return Window{Start: start, End: end}, nil
}

func isClosedValue(raw []byte) bool {
	switch string(raw) {
	case "", "null", "false", "[]", `""`, `"closed"`:
		return true
	}
	return false
}

func decodeDay(raw json.RawMessage) ([]Window, error) {
	raw = bytes.TrimSpace(raw)
	if isClosedValue(raw) {
		return nil, nil
	}

	switch raw[0] {
	case '{':
		var d dayValueJSON
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		return d.decode()
	case '[':
		var list []windowJSON
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return decodeWindows(list)
	}

	return nil, fmt.Errorf("unsupported working hours value %s", raw)
}

func decodeDayKey(raw json.RawMessage) (time.Weekday, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseWeekday(s)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("weekday must be a number or a name, got %s", raw)
	}
	return ParseWeekday(strconv.Itoa(n))
}

// UnmarshalJSON decodes either a weekday-keyed object or a list of
// {"day", "start", "end"} entries. In the object form each weekday may
// appear under one key only; the list form may repeat a day to add windows.
func (wh *WorkingHours) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := make(WorkingHours)

	if isClosedValue(data) {
		*wh = out
		return nil
	}

	switch data[0] {
	case '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode working hours: %w", err)
		}
		seen := make(map[time.Weekday]string, len(raw))
		for key, value := range raw {
			day, err := ParseWeekday(key)
			if err != nil {
				return fmt.Errorf("decode working hours: %w", err)
			}
			if prev, ok := seen[day]; ok {
				return fmt.Errorf("decode working hours: %q and %q both configure %s", prev, key, day)
			}
			seen[day] = key
			windows, err := decodeDay(value)
			if err != nil {
				return fmt.Errorf("decode working hours for %s: %w", key, err)
			}
			out.add(day, windows...)
		}
	case '[':
		var entries []dayEntryJSON
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode working hours: %w", err)
		}
		for i, e := range entries {
			day, err := decodeDayKey(e.Day)
			if err != nil {
				return fmt.Errorf("decode working hours entry %d: %w", i, err)
			}
			windows, err := e.decode()
			if err != nil {
				return fmt.Errorf("decode working hours entry %d: %w", i, err)
			}
			out.add(day, windows...)
		}
	default:
		return fmt.Errorf("decode working hours: unsupported value %s", data)
	}

	*wh = out
	return nil
}

// MarshalJSON writes the zero-based numeric form, e.g. {"1":[{"start":"09:00:00","end":"12:00:00"}]}.
func (wh WorkingHours) MarshalJSON() ([]byte, error) {
	out := make(map[string][]windowJSON, len(wh))
	for day, windows := range wh {
		list := make([]windowJSON, 0, len(windows))
		for _, w := range windows {
			list = append(list, windowJSON{Start: w.Start.String(), End: w.End.String()})
		}
		out[strconv.Itoa(int(day))] = list
	}
	return json.Marshal(out)
}
