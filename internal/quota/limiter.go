// AngelaMos | 2026
// limiter.go

package quota

import (
	"context"
	"strconv"
	"time"
)

const (
	ReasonRateLimited = "RATE_LIMITED"
	ReasonDailyLimit  = "DAILY_LIMIT"

	minuteBucketTTL = 120 * time.Second
	dayBucketTTL    = 86400 * time.Second
)

type Limits struct {
	PerMinute int
	Daily     int
}

// Result describes one admission attempt. Limit and Remaining refer to the
// minute window. A rejected attempt increments nothing.
type Result struct {
	Allowed        bool
	Reason         string
	Limit          int
	Remaining      int
	DailyLimit     int
	DailyRemaining int
	Reset          time.Time
}

// Limiter checks both windows and counts the request only when admitted.
type Limiter interface {
	Take(ctx context.Context, userID string, limits Limits, now time.Time) (*Result, error)
}

func minuteKey(userID string, now time.Time) string {
	return "rate:" + userID + ":" + strconv.FormatInt(now.Unix()/60, 10)
}

func dayKey(userID string, now time.Time) string {
	return "daily:" + userID + ":" + now.UTC().Format("2006-01-02")
}

func nextMinute(now time.Time) time.Time {
	return now.Truncate(time.Minute).Add(time.Minute)
}

func nextDay(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// evaluate turns bucket counts into a Result. minute and day are the counts
// after the attempt when admitted, before it when rejected.
func evaluate(limits Limits, now time.Time, admitted bool, minute, day int) *Result {
	res := &Result{
		Allowed:        admitted,
		Limit:          limits.PerMinute,
		Remaining:      max(0, limits.PerMinute-minute),
		DailyLimit:     limits.Daily,
		DailyRemaining: max(0, limits.Daily-day),
		Reset:          nextMinute(now),
	}

	if admitted {
		return res
	}

	if minute >= limits.PerMinute {
		res.Reason = ReasonRateLimited
		res.Remaining = 0
		return res
	}

	res.Reason = ReasonDailyLimit
	res.DailyRemaining = 0
	res.Reset = nextDay(now)
	return res
}
