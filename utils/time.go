// Package utils provides utility functions for the application.
package utils

import (
	"time"
)

// SeoulLocation is the vendor-facing timezone; order references and "today" stats use it
var SeoulLocation = loadSeoulLocation()

func loadSeoulLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowPtr returns a pointer to the current time in UTC
func UTCNowPtr() *time.Time {
	now := UTCNow()
	return &now
}

// UTCNowUnixMilli returns the current UTC time as Unix millisecond timestamp
func UTCNowUnixMilli() int64 {
	return UTCNow().UnixMilli()
}

// SeoulNow returns the current time in Asia/Seoul
func SeoulNow() time.Time {
	return time.Now().In(SeoulLocation)
}

// StartOfDay returns midnight of t's calendar day in loc, expressed in UTC
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).UTC()
}
