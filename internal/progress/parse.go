package progress

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// elapsedPattern matches the encoder's "time=HH:MM:SS[.fraction]" stat token
var elapsedPattern = regexp.MustCompile(`time=(\d+):(\d{2}):(\d{2}(?:\.\d+)?)`)

// ParseElapsed extracts the elapsed media time, in seconds, from one line of
// encoder diagnostics
func ParseElapsed(line string) (float64, bool) {
	m := elapsedPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}
	return float64(hours*3600+minutes*60) + seconds, true
}

// UnknownETA is shown when no estimate is possible
const UnknownETA = "--:--"

// minETAPercent is the progress below which estimates are too noisy to show
const minETAPercent = 5.0

// EstimateRemaining extrapolates the time left from the wall time spent and
// the percentage done. It reports false at or below 5 percent.
func EstimateRemaining(elapsed time.Duration, percent float64) (time.Duration, bool) {
	if percent <= minETAPercent || elapsed <= 0 {
		return 0, false
	}
	if percent >= 100 {
		return 0, true
	}
	total := time.Duration(float64(elapsed) * 100 / percent)
	return total - elapsed, true
}

// FormatETA renders a remaining duration as HH:MM, rounded to whole minutes
func FormatETA(remaining time.Duration) string {
	if remaining < 0 {
		remaining = 0
	}
	minutes := int(remaining.Round(time.Minute) / time.Minute)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ETA combines EstimateRemaining and FormatETA
func ETA(elapsed time.Duration, percent float64) string {
	remaining, ok := EstimateRemaining(elapsed, percent)
	if !ok {
		return UnknownETA
	}
	return FormatETA(remaining)
}
