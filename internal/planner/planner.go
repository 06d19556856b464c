// Package planner decides which HLS renditions to produce for a source.
package planner

import "github.com/cuivienor/hls-ladder/internal/model"

// upscaleGuard is the margin a source must exceed the 1080p pixel area by
// before 1080p is produced.
const upscaleGuard = 1.2

// fallback is used when the source resolution is unknown
var fallback = []model.Quality{model.Quality720p, model.Quality480p, model.Quality360p}

// SelectTargetQualities returns the qualities to encode for a source of the
// given "WxH" resolution. 360p is always included. Known resolutions yield
// qualities from lowest to highest.
func SelectTargetQualities(resolution string) []model.Quality {
	width, height, ok := model.ParseResolution(resolution)
	if !ok {
		out := make([]model.Quality, len(fallback))
		copy(out, fallback)
		return out
	}
	return selectByPixels(width * height)
}

func selectByPixels(pixels int) []model.Quality {
	qualities := []model.Quality{model.Quality360p}
	for _, p := range model.Profiles() {
		switch p.Quality {
		case model.Quality360p:
			continue
		case model.Quality1080p:
			if float64(pixels) >= float64(p.Pixels())*upscaleGuard {
				qualities = append(qualities, p.Quality)
			}
		default:
			if pixels >= p.Pixels() {
				qualities = append(qualities, p.Quality)
			}
		}
	}
	return qualities
}
