package entity

import "time"

// DateLayout is the storage and wire format of calendar dates
const DateLayout = "2006-01-02"

// Delegation is a time-boxed grant letting a delegate act for a delegator.
// ValidFrom and ValidUntil are calendar days, both inclusive.
type Delegation struct {
	ID              int64     `json:"id"`
	DelegatorUserID string    `json:"delegator_user_id"`
	DelegateUserID  string    `json:"delegate_user_id"`
	ValidFrom       time.Time `json:"valid_from"`
	ValidUntil      time.Time `json:"valid_until"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Covers reports whether day falls inside [ValidFrom, ValidUntil]
func (d *Delegation) Covers(day time.Time) bool {
	key := day.Format(DateLayout)
	return d.ValidFrom.Format(DateLayout) <= key && key <= d.ValidUntil.Format(DateLayout)
}

// Overlaps reports whether two delegations share at least one day
func (d *Delegation) Overlaps(other *Delegation) bool {
	return d.ValidFrom.Format(DateLayout) <= other.ValidUntil.Format(DateLayout) &&
		other.ValidFrom.Format(DateLayout) <= d.ValidUntil.Format(DateLayout)
}

// DateOf truncates t to its calendar day in loc
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween counts calendar days from from to to, each read as the
// Y/M/D it carries in its own location
func DaysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD calendar date
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
