package usage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.senan.xyz/chorus/db"
)

func TestLastPlayedScore(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0, lastPlayedScore(0))
	require.Equal(t, 3, lastPlayedScore(1))
	require.Equal(t, 6, lastPlayedScore(3))
	// six months of silence matches the never played penalty
	require.Equal(t, neverPlayedPenalty, lastPlayedScore(180))
	require.Equal(t, 100, lastPlayedScore(720))
}

func TestDisposability(t *testing.T) {
	t.Parallel()
	const now = int64(1_700_000_000)
	track := db.Track{Size: 10 * 1024 * 1024}

	require.Equal(t, 40+50, disposability(&track, nil, now))

	playedToday := db.TrackUsage{Score: 1, LastEventTime: now}
	require.Equal(t, 40-1, disposability(&track, &playedToday, now))

	// plays count against the track quadratically
	playedOften := db.TrackUsage{Score: 5, LastEventTime: now - secondsPerDay}
	require.Equal(t, 40+3-25, disposability(&track, &playedOften, now))
}
