////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Tests date bucketing against a fixed clock: relative labels for the recent
// week, a long-form date beyond that, and the unknown bucket last.
func TestBuildConversation_Buckets(t *testing.T) {
	// A Wednesday afternoon.
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

	msgs := []Message{
		{ID: "old", Timestamp: time.Date(2023, 12, 21, 9, 0, 0, 0, time.UTC)},
		{ID: "sun", Timestamp: time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC)},
		{ID: "yst-1", Timestamp: time.Date(2024, 1, 9, 8, 0, 0, 0, time.UTC)},
		{ID: "yst-2", Timestamp: time.Date(2024, 1, 9, 19, 0, 0, 0, time.UTC)},
		{ID: "today", Timestamp: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)},
		{ID: "lost"},
	}

	buckets := BuildConversation(msgs, now, time.UTC)
	require.Len(t, buckets, 5)

	require.Equal(t, "Thursday, December 21", buckets[0].Label)
	require.Equal(t, "Sunday", buckets[1].Label)
	require.Equal(t, "Yesterday", buckets[2].Label)
	require.Equal(t, "Today", buckets[3].Label)
	require.Equal(t, UnknownBucketLabel, buckets[4].Label)

	// Bucket contents preserve conversation order.
	require.Equal(t, "yst-1", buckets[2].Messages[0].ID)
	require.Equal(t, "yst-2", buckets[2].Messages[1].ID)
	require.Equal(t, "lost", buckets[4].Messages[0].ID)
	require.True(t, buckets[4].Day.IsZero())
}

// Tests that the grouping is a pure transform: the same inputs always produce
// the same buckets.
func TestBuildConversation_Deterministic(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "a", Timestamp: time.Date(2024, 1, 9, 8, 0, 0, 0, time.UTC)},
		{ID: "b", Timestamp: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)},
		{ID: "c"},
	}

	first := BuildConversation(msgs, now, time.UTC)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, BuildConversation(msgs, now, time.UTC))
	}
}

// Tests that an empty conversation yields no buckets, not an empty unknown
// bucket.
func TestBuildConversation_Empty(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
	require.Empty(t, BuildConversation(nil, now, time.UTC))
}

// Tests that bucket boundaries follow the viewer's time zone, not UTC. An
// instant late on Jan 9 UTC is already Jan 10 in a UTC+10 zone.
func TestBuildConversation_LocalDays(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, loc)

	msgs := []Message{
		{ID: "m1", Timestamp: time.Date(2024, 1, 9, 20, 0, 0, 0, time.UTC)},
	}

	buckets := BuildConversation(msgs, now, loc)
	require.Len(t, buckets, 1)
	require.Equal(t, "Today", buckets[0].Label)
}

// Tests the roster-style short time formats.
func TestFormatMessageTime(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		ts       time.Time
		expected string
	}{
		{time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC), "09:30"},
		{time.Date(2024, 1, 9, 23, 0, 0, 0, time.UTC), "Yesterday"},
		{time.Date(2024, 1, 7, 9, 0, 0, 0, time.UTC), "Sun"},
		{time.Date(2023, 12, 21, 9, 0, 0, 0, time.UTC), "Dec 21"},
		{time.Time{}, ""},
	} {
		require.Equal(t, tc.expected,
			FormatMessageTime(tc.ts, now, time.UTC), "case %d", i)
	}
}
