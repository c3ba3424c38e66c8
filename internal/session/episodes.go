package session

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/sharetube/watchparty/internal/catalog"
	"golang.org/x/exp/maps"
)

type EpisodeRef struct {
	Season  string          `json:"season"`
	Episode catalog.Episode `json:"episode"`
}

// UpcomingEpisodes lists up to limit episodes after (season, episode) in
// playback order: seasons numerically, episodes as listed. Nothing is
// upcoming when the current episode is not in the list.
func UpcomingEpisodes(episodes catalog.Episodes, season string, episode, limit int) []EpisodeRef {
	seasons := maps.Keys(episodes)
	slices.SortFunc(seasons, compareSeasons)

	var (
		upcoming     []EpisodeRef
		foundCurrent bool
	)
	for _, s := range seasons {
		for _, ep := range episodes[s] {
			if s == season && ep.Episode == episode {
				foundCurrent = true
				continue
			}

			if foundCurrent {
				upcoming = append(upcoming, EpisodeRef{Season: s, Episode: ep})
				if len(upcoming) == limit {
					return upcoming
				}
			}
		}
	}

	return upcoming
}

func NextEpisode(episodes catalog.Episodes, season string, episode int) (EpisodeRef, bool) {
	upcoming := UpcomingEpisodes(episodes, season, episode, 1)
	if len(upcoming) == 0 {
		return EpisodeRef{}, false
	}

	return upcoming[0], true
}

// compareSeasons orders numeric seasons by value, then anything else lexically.
func compareSeasons(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)

	switch {
	case errA == nil && errB == nil:
		if c := cmp.Compare(na, nb); c != 0 {
			return c
		}
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}

	return cmp.Compare(a, b)
}
