package http

import (
	"errors"
	"math"
	"strconv"
	"time"
)

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// msRange parses optional relative millisecond bounds. A missing upper bound
// is open.
func msRange(fromRaw, toRaw string) (int64, int64, error) {
	var from, to int64 = 0, math.MaxInt64
	var err error
	if fromRaw != "" {
		if from, err = strconv.ParseInt(fromRaw, 10, 64); err != nil || from < 0 {
			return 0, 0, errors.New("invalid from")
		}
	}
	if toRaw != "" {
		if to, err = strconv.ParseInt(toRaw, 10, 64); err != nil || to < 0 {
			return 0, 0, errors.New("invalid to")
		}
	}
	if to < from {
		return 0, 0, errors.New("to is before from")
	}
	return from, to, nil
}
