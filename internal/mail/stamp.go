package mail

import (
	"strconv"
	"time"
)

// Directory booleans are stored as upper-case strings.
const (
	BoolTrue  = "TRUE"
	BoolFalse = "FALSE"
)

// now is replaced in tests.
var now = time.Now

// FormatBool renders b the way the directory schema expects.
func FormatBool(b bool) string {
	if b {
		return BoolTrue
	}
	return BoolFalse
}

// ParseBool reads a directory boolean. Anything but "TRUE" is false.
func ParseBool(s string) bool {
	return s == BoolTrue
}

// FormatEpoch renders a lastChange value.
func FormatEpoch(sec int64) string {
	return strconv.FormatInt(sec, 10)
}

// ParseEpoch reads a lastChange value; malformed input yields 0.
func ParseEpoch(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// nextStamp returns the current epoch second, or prev+1 if the clock has
// not moved past prev.
func nextStamp(prev int64) int64 {
	ts := now().Unix()
	if ts <= prev {
		return prev + 1
	}
	return ts
}
