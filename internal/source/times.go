package source

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Distances in miles used for pace derivation when a provider reports a
// finish time but no pace.
const (
	MilesMarathon     = 26.2188
	MilesHalfMarathon = 13.1094
	Miles10K          = 6.2137
	Miles5K           = 3.1069
)

var timeRe = regexp.MustCompile(`^(?:(\d{1,2})[:.])?(\d{1,2})[:.](\d{2})$`)

// NormalizeTime canonicalizes a raw provider finish-time string to HH:MM:SS,
// or MM:SS when there is no hour component. Providers variously report
// "3:41:22", "03:41:22", "3.41.22" and " 41:22 ".
func NormalizeTime(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", eris.New("times: empty finish time")
	}

	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return "", eris.Errorf("times: unrecognized finish time %q", raw)
	}

	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if seconds > 59 {
		return "", eris.Errorf("times: invalid seconds in %q", raw)
	}

	if m[1] == "" {
		if minutes > 59 {
			return "", eris.Errorf("times: invalid minutes in %q", raw)
		}
		return fmt.Sprintf("%d:%02d", minutes, seconds), nil
	}

	hours, _ := strconv.Atoi(m[1])
	if minutes > 59 {
		return "", eris.Errorf("times: invalid minutes in %q", raw)
	}
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds), nil
}

// ParseFinishDuration converts a canonical finish time into a duration.
func ParseFinishDuration(canonical string) (time.Duration, error) {
	parts := strings.Split(canonical, ":")
	var h, m, s int
	var err error
	switch len(parts) {
	case 2:
		m, err = strconv.Atoi(parts[0])
		if err == nil {
			s, err = strconv.Atoi(parts[1])
		}
	case 3:
		h, err = strconv.Atoi(parts[0])
		if err == nil {
			m, err = strconv.Atoi(parts[1])
		}
		if err == nil {
			s, err = strconv.Atoi(parts[2])
		}
	default:
		return 0, eris.Errorf("times: malformed canonical time %q", canonical)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "times: parse %q", canonical)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second, nil
}

// DerivePace computes an average pace string of the form "M:SS/mi" from a
// canonical finish time and the event distance.
func DerivePace(canonicalTime string, distanceMiles float64) (string, error) {
	if distanceMiles <= 0 {
		return "", eris.Errorf("times: invalid distance %f", distanceMiles)
	}
	total, err := ParseFinishDuration(canonicalTime)
	if err != nil {
		return "", err
	}
	perMile := time.Duration(float64(total) / distanceMiles)
	perMile = perMile.Round(time.Second)
	mins := int(perMile / time.Minute)
	secs := int(perMile/time.Second) % 60
	return fmt.Sprintf("%d:%02d/mi", mins, secs), nil
}

// DistanceForEvent maps a provider event label to its distance in miles.
// Zero means unknown, in which case no pace is derived.
func DistanceForEvent(event string) float64 {
	switch strings.ToLower(strings.TrimSpace(event)) {
	case "marathon", "full marathon", "26.2":
		return MilesMarathon
	case "half marathon", "half", "13.1":
		return MilesHalfMarathon
	case "10k":
		return Miles10K
	case "5k":
		return Miles5K
	}
	return 0
}
