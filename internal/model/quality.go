package model

import (
	"fmt"
	"strings"
)

// Quality is a target rendition label
type Quality string

const (
	Quality360p  Quality = "360p"
	Quality480p  Quality = "480p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
)

// Profile describes the encoding parameters for a quality
type Profile struct {
	Quality Quality
	Width   int
	Height  int
	Bitrate int // video bits per second
}

// profiles is ordered from lowest to highest
var profiles = []Profile{
	{Quality: Quality360p, Width: 640, Height: 360, Bitrate: 600_000},
	{Quality: Quality480p, Width: 854, Height: 480, Bitrate: 1_000_000},
	{Quality: Quality720p, Width: 1280, Height: 720, Bitrate: 2_500_000},
	{Quality: Quality1080p, Width: 1920, Height: 1080, Bitrate: 5_000_000},
}

// Profiles returns the quality table from lowest to highest
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}

// Profile returns the encoding parameters for q
func (q Quality) Profile() (Profile, bool) {
	for _, p := range profiles {
		if p.Quality == q {
			return p, true
		}
	}
	return Profile{}, false
}

// Rank orders qualities from lowest (0) to highest; unknown labels return -1
func (q Quality) Rank() int {
	for i, p := range profiles {
		if p.Quality == q {
			return i
		}
	}
	return -1
}

// ParseQuality validates a quality label
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if q.Rank() < 0 {
		return "", fmt.Errorf("unknown quality %q", s)
	}
	return q, nil
}

// Pixels returns the pixel area of the profile
func (p Profile) Pixels() int {
	return p.Width * p.Height
}

// Resolution returns the profile size as "WxH"
func (p Profile) Resolution() string {
	return FormatResolution(p.Width, p.Height)
}

// BitrateArg returns the bitrate in the form ffmpeg expects, e.g. "2500k"
func (p Profile) BitrateArg() string {
	return fmt.Sprintf("%dk", p.Bitrate/1000)
}
