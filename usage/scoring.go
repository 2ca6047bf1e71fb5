package usage

import (
	"math"

	"go.senan.xyz/chorus/db"
)

const (
	// one disposability point per quarter MiB of file size
	sizeFactor = 262_144
	// flat penalty for tracks that were never played
	neverPlayedPenalty = 50
	// days of silence after which a played track scores like a never
	// played one
	lastPlayedFactor = 180
	playCountFactor  = 1
	resultLimit      = 25

	secondsPerDay = 86_400
)

// disposability ranks how safely a track can be reclaimed. Bigger files rank
// higher, stale files rank higher, and every completed play pushes the track
// down quadratically.
func disposability(track *db.Track, usage *db.TrackUsage, nowEpoch int64) int {
	score := track.Size / sizeFactor
	if usage == nil {
		return score + neverPlayedPenalty
	}
	days := (nowEpoch - usage.LastEventTime) / secondsPerDay
	score += lastPlayedScore(days)
	score -= usage.Score * usage.Score * playCountFactor
	return score
}

func lastPlayedScore(days int64) int {
	return int(math.Floor(math.Sqrt(float64(days*lastPlayedFactor)) * (neverPlayedPenalty / float64(lastPlayedFactor))))
}
