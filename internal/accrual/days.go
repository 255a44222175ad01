package accrual

import "time"

// DaysOverdue returns max(0, today - due) in whole calendar days. Time of day is
// ignored; today is evaluated in due's location.
func DaysOverdue(due, today time.Time) int {
	if due.IsZero() || today.IsZero() {
		return 0
	}
	loc := due.Location()
	today = today.In(loc)
	dueDate := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	days := int(todayDate.Sub(dueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
