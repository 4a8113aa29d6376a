////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import "time"

// UnknownBucketLabel is the label of the terminal bucket holding messages
// with no usable timestamp.
const UnknownBucketLabel = "Unknown"

// DayBucket groups the messages of one calendar day for display. Labels are
// computed in the viewer's local time zone.
type DayBucket struct {
	// Label is "Today", "Yesterday", a weekday name for the previous six
	// days, a long-form date beyond that, or [UnknownBucketLabel].
	Label string

	// Day is the local midnight of the bucket. Zero for the unknown
	// bucket.
	Day time.Time

	// Messages holds the bucket's messages in conversation order.
	Messages []Message
}

// BuildConversation groups an ordered message sequence into date buckets.
// It is a pure, repeatable transform: the same inputs always produce the
// same buckets, so it is safe to re-derive on every store change.
//
// msgs must already be in conversation order (see [Store.AllFor]); bucket
// contents preserve it. Messages with no timestamp collect in a single
// terminal unknown bucket.
func BuildConversation(
	msgs []Message, now time.Time, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.Local
	}

	var buckets []DayBucket
	var unknown []Message
	byDay := make(map[time.Time]int)

	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			unknown = append(unknown, m)
			continue
		}

		day := localMidnight(m.Timestamp, loc)
		idx, ok := byDay[day]
		if !ok {
			buckets = append(buckets, DayBucket{
				Label: dayLabel(day, now, loc),
				Day:   day,
			})
			idx = len(buckets) - 1
			byDay[day] = idx
		}
		buckets[idx].Messages = append(buckets[idx].Messages, m)
	}

	if len(unknown) > 0 {
		buckets = append(buckets, DayBucket{
			Label:    UnknownBucketLabel,
			Messages: unknown,
		})
	}
	return buckets
}

// localMidnight truncates a time to the start of its local calendar day.
func localMidnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// daysAgo counts calendar days between two local midnights. Rounding keeps
// DST-shortened days from miscounting.
func daysAgo(day, today time.Time) int {
	return int(today.Sub(day).Round(24*time.Hour) / (24 * time.Hour))
}

// dayLabel names a calendar day relative to now.
func dayLabel(day, now time.Time, loc *time.Location) string {
	today := localMidnight(now, loc)
	switch days := daysAgo(day, today); {
	case days == 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days > 1 && days < 7:
		return day.Weekday().String()
	default:
		return day.Format("Monday, January 2")
	}
}

// FormatMessageTime renders a roster-style short time for a message: the
// clock for today, "Yesterday", the short weekday inside a week, else a
// short date. An unknown timestamp renders empty.
func FormatMessageTime(ts, now time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}

	day := localMidnight(ts, loc)
	today := localMidnight(now, loc)
	switch days := daysAgo(day, today); {
	case days <= 0:
		return ts.In(loc).Format("15:04")
	case days == 1:
		return "Yesterday"
	case days < 7:
		return ts.In(loc).Format("Mon")
	default:
		return ts.In(loc).Format("Jan 2")
	}
}
