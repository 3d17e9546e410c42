// Package time contains time related helpers
package time

import "time"

// Ptr returns a pointer to t or nil if t is zero
func Ptr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// FoldMin returns the earlier of cur and t, treating a nil cur as unset
func FoldMin(cur *time.Time, t time.Time) *time.Time {
	if t.IsZero() {
		return cur
	}
	if cur == nil || t.Before(*cur) {
		return &t
	}
	return cur
}

// FoldMax returns the later of cur and t, treating a nil cur as unset
func FoldMax(cur *time.Time, t time.Time) *time.Time {
	if t.IsZero() {
		return cur
	}
	if cur == nil || t.After(*cur) {
		return &t
	}
	return cur
}
