package codec

import "time"

func unixNanoToTime(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

func durationOf(ns int64) time.Duration {
	return time.Duration(ns)
}
