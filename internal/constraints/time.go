// internal/constraints/time.go
package constraints

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

/*
 * Time windows, blackouts, special windows and capacity-bounded slots.
 *
 * Admission order for an instant t (evaluated in the constraint's location):
 *   1. inside a special window        -> admitted
 *   2. weekday not in AllowedDays     -> rejected
 *   3. clock time outside Window      -> rejected
 *   4. slots configured, none covers  -> rejected
 *
 * Blackouts are not part of Admits: the resolver asks ActiveBlackout and
 * decides between exclusion, alternate-rule substitution, and
 * post-action suppression, depending on the blackout type.
 *
 * Windows whose start is after their end wrap midnight (22:00-06:00).
 */

// ClockTime is a time of day in seconds since midnight.
type ClockTime int

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (ClockTime, error) {
	var h, m, sec int
	var n int
	var err error
	switch strings.Count(s, ":") {
	case 1:
		n, err = fmt.Sscanf(s, "%d:%d", &h, &m)
		if err == nil && n != 2 {
			err = fmt.Errorf("expected HH:MM")
		}
	case 2:
		n, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
		if err == nil && n != 3 {
			err = fmt.Errorf("expected HH:MM:SS")
		}
	default:
		err = fmt.Errorf("expected HH:MM[:SS]")
	}
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid clock time %q: out of range", s)
	}
	return ClockTime(h*3600 + m*60 + sec), nil
}

// ClockOf returns the clock time of t in its own location.
func ClockOf(t time.Time) ClockTime {
	h, m, s := t.Clock()
	return ClockTime(h*3600 + m*60 + s)
}

func (c ClockTime) String() string {
	s := int(c)
	if s%60 == 0 {
		return fmt.Sprintf("%02d:%02d", s/3600, (s/60)%60)
	}
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is a daily clock interval.
type Window struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// Contains reports whether c lies in [Start, End). An empty window contains nothing.
func (w Window) Contains(c ClockTime) bool {
	switch {
	case w.Start < w.End:
		return c >= w.Start && c < w.End
	case w.Start > w.End:
		return c >= w.Start || c < w.End
	default:
		return false
	}
}

// StrictlyContains reports whether c lies in (Start, End).
func (w Window) StrictlyContains(c ClockTime) bool {
	switch {
	case w.Start < w.End:
		return c > w.Start && c < w.End
	case w.Start > w.End:
		return c > w.Start || c < w.End
	default:
		return false
	}
}

// BlackoutType selects what a blackout suppresses.
type BlackoutType string

const (
	BlackoutFull         BlackoutType = "FULL"
	BlackoutDiscountOnly BlackoutType = "DISCOUNT_ONLY"
	BlackoutIncreaseOnly BlackoutType = "INCREASE_ONLY"
)

// BlackoutPeriod is an absolute interval [Start, End) during which a rule is restricted.
type BlackoutPeriod struct {
	Name                   string           `json:"name,omitempty"`
	Type                   BlackoutType     `json:"type"`
	Start                  time.Time        `json:"start"`
	End                    time.Time        `json:"end"`
	AlternateRuleID        string           `json:"alternate_rule_id,omitempty"`
	PriceAdjustmentPercent *decimal.Decimal `json:"price_adjustment_percent,omitempty"`
	Reason                 string           `json:"reason,omitempty"`
}

// Active reports whether t lies in [Start, End).
func (b BlackoutPeriod) Active(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Suppress restricts a rule's output price during the blackout.
// FULL keeps the starting price, DISCOUNT_ONLY blocks decreases,
// INCREASE_ONLY blocks increases. A price adjustment, when set,
// replaces the rule's output with start adjusted by that percentage.
func (b BlackoutPeriod) Suppress(start, proposed decimal.Decimal) decimal.Decimal {
	if b.PriceAdjustmentPercent != nil {
		return start.Add(start.Mul(*b.PriceAdjustmentPercent).Div(hundred))
	}
	switch b.Type {
	case BlackoutFull:
		return start
	case BlackoutDiscountOnly:
		if proposed.LessThan(start) {
			return start
		}
	case BlackoutIncreaseOnly:
		if proposed.GreaterThan(start) {
			return start
		}
	}
	return proposed
}

// SpecialWindow is a named absolute interval that overrides day and window checks.
type SpecialWindow struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Active reports whether t lies in [Start, End).
func (s SpecialWindow) Active(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// TimeSlot is a daily window with a per-day application capacity.
type TimeSlot struct {
	Name     string `json:"name"`
	Window   Window `json:"window"`
	Capacity int    `json:"capacity"`
}

// TimeConstraints gates when a rule may apply.
type TimeConstraints struct {
	Location       string           `json:"location,omitempty"` // IANA name, UTC when empty
	AllowedDays    []string         `json:"allowed_days,omitempty"`
	Window         *Window          `json:"window,omitempty"`
	Blackouts      []BlackoutPeriod `json:"blackouts,omitempty"`
	SpecialWindows []SpecialWindow  `json:"special_windows,omitempty"`
	Slots          []TimeSlot       `json:"slots,omitempty"`
}

var locations sync.Map // name -> *time.Location

// LoadLocation resolves an IANA name, caching successful lookups.
// Empty names resolve to UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	locations.Store(name, loc)
	return loc, nil
}

// Local converts t into the constraint's location, falling back to UTC.
func (tc *TimeConstraints) Local(t time.Time) time.Time {
	if tc == nil {
		return t
	}
	loc, err := LoadLocation(tc.Location)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc)
}

// Admits reports whether t passes special windows, allowed days, the main window and slots.
func (tc *TimeConstraints) Admits(t time.Time) bool {
	if tc == nil {
		return true
	}
	if tc.InSpecialWindow(t) != nil {
		return true
	}
	local := tc.Local(t)
	if len(tc.AllowedDays) > 0 && !dayAllowed(tc.AllowedDays, local.Weekday()) {
		return false
	}
	if tc.Window != nil && !tc.Window.Contains(ClockOf(local)) {
		return false
	}
	if len(tc.Slots) > 0 && tc.SlotAt(t) == nil {
		return false
	}
	return true
}

// ActiveBlackout returns the first blackout covering t, or nil.
func (tc *TimeConstraints) ActiveBlackout(t time.Time) *BlackoutPeriod {
	if tc == nil {
		return nil
	}
	for i := range tc.Blackouts {
		if tc.Blackouts[i].Active(t) {
			return &tc.Blackouts[i]
		}
	}
	return nil
}

// InSpecialWindow returns the first special window covering t, or nil.
func (tc *TimeConstraints) InSpecialWindow(t time.Time) *SpecialWindow {
	if tc == nil {
		return nil
	}
	for i := range tc.SpecialWindows {
		if tc.SpecialWindows[i].Active(t) {
			return &tc.SpecialWindows[i]
		}
	}
	return nil
}

// SlotAt returns the first slot whose window covers t's local clock time, or nil.
func (tc *TimeConstraints) SlotAt(t time.Time) *TimeSlot {
	if tc == nil {
		return nil
	}
	c := ClockOf(tc.Local(t))
	for i := range tc.Slots {
		if tc.Slots[i].Window.Contains(c) {
			return &tc.Slots[i]
		}
	}
	return nil
}

// Validate checks location, days, windows, blackouts and slots.
func (tc *TimeConstraints) Validate() ValidationErrors {
	var errs ValidationErrors
	if tc == nil {
		return errs
	}
	if _, err := LoadLocation(tc.Location); err != nil {
		errs.Add("location", "unknown location %q", tc.Location)
	}
	for i, d := range tc.AllowedDays {
		if _, ok := ParseWeekday(d); !ok {
			errs.Add("allowed_days["+itoa(i)+"]", "unknown weekday %q", d)
		}
	}
	if tc.Window != nil && tc.Window.Start == tc.Window.End {
		errs.Add("window", "start and end must differ")
	}
	for i, b := range tc.Blackouts {
		field := "blackouts[" + itoa(i) + "]"
		switch b.Type {
		case BlackoutFull, BlackoutDiscountOnly, BlackoutIncreaseOnly:
		default:
			errs.Add(field+".type", "unknown blackout type %q", b.Type)
		}
		if !b.Start.Before(b.End) {
			errs.Add(field+".start", "must be before end")
		}
		if b.PriceAdjustmentPercent != nil && b.PriceAdjustmentPercent.LessThanOrEqual(hundred.Neg()) {
			errs.Add(field+".price_adjustment_percent", "must be above -100")
		}
	}
	for i, s := range tc.SpecialWindows {
		if !s.Start.Before(s.End) {
			errs.Add("special_windows["+itoa(i)+"].start", "must be before end")
		}
	}
	seen := make(map[string]bool, len(tc.Slots))
	for i, s := range tc.Slots {
		field := "slots[" + itoa(i) + "]"
		if s.Name == "" {
			errs.Add(field+".name", "required")
		} else if seen[s.Name] {
			errs.Add(field+".name", "duplicate slot %q", s.Name)
		}
		seen[s.Name] = true
		if s.Window.Start == s.Window.End {
			errs.Add(field+".window", "start and end must differ")
		}
		if s.Capacity <= 0 {
			errs.Add(field+".capacity", "must be positive, got %d", s.Capacity)
		}
	}
	return errs
}

// Clone returns a deep copy.
func (tc *TimeConstraints) Clone() *TimeConstraints {
	if tc == nil {
		return nil
	}
	out := *tc
	out.AllowedDays = append([]string(nil), tc.AllowedDays...)
	if tc.Window != nil {
		w := *tc.Window
		out.Window = &w
	}
	out.Blackouts = append([]BlackoutPeriod(nil), tc.Blackouts...)
	out.SpecialWindows = append([]SpecialWindow(nil), tc.SpecialWindows...)
	out.Slots = append([]TimeSlot(nil), tc.Slots...)
	return &out
}

// ParseWeekday accepts full or three-letter English day names in any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToUpper(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

func dayAllowed(days []string, d time.Weekday) bool {
	for _, s := range days {
		if wd, ok := ParseWeekday(s); ok && wd == d {
			return true
		}
	}
	return false
}

// SlotCounter enforces slot capacity per rule and local day.
// Safe for concurrent use. Each rule's day is its own local date, so rules in
// different locations never share or reset each other's counts. Dates more
// than slotRetention days behind the newest date seen are pruned.
type SlotCounter struct {
	mu     sync.Mutex
	latest time.Time
	used   map[string]map[string]int // local date -> rule|slot -> count
}

const slotRetention = 2

// NewSlotCounter returns an empty counter.
func NewSlotCounter() *SlotCounter {
	return &SlotCounter{used: make(map[string]map[string]int)}
}

// Acquire consumes one unit of slot capacity for ruleID on local's date.
// It returns false when the slot is exhausted.
func (c *SlotCounter) Acquire(ruleID string, slot TimeSlot, local time.Time) bool {
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	day := date.Format("2006-01-02")
	key := ruleID + "|" + slot.Name

	c.mu.Lock()
	defer c.mu.Unlock()
	if date.After(c.latest) {
		c.latest = date
		c.prune()
	}
	counts := c.used[day]
	if counts == nil {
		counts = make(map[string]int)
		c.used[day] = counts
	}
	if counts[key] >= slot.Capacity {
		return false
	}
	counts[key]++
	return true
}

func (c *SlotCounter) prune() {
	cutoff := c.latest.AddDate(0, 0, -slotRetention).Format("2006-01-02")
	for day := range c.used {
		if day < cutoff {
			delete(c.used, day)
		}
	}
}
