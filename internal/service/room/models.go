package room

import (
	"slices"

	"golang.org/x/exp/maps"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFriends Visibility = "friends"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFriends, VisibilityPrivate:
		return true
	}
	return false
}

type User struct {
	UserID   string `json:"userId"`
	JoinedAt int64  `json:"joinedAt"`
}

type SeriesState struct {
	SeriesID        string `json:"seriesId"`
	CurrentSeason   string `json:"currentSeason"`
	CurrentEpisode  int    `json:"currentEpisode"`
	AutoplayEnabled bool   `json:"autoplayEnabled"`
}

// Room is the replicated room record. ID is the store key and is not stored.
type Room struct {
	ID          string          `json:"-"`
	HostID      string          `json:"hostId"`
	VideoID     string          `json:"videoId"`
	VideoURL    string          `json:"videoUrl,omitempty"`
	IsPlaying   bool            `json:"isPlaying"`
	CurrentTime float64         `json:"currentTime"`
	LastUpdate  int64           `json:"lastUpdate"`
	Visibility  Visibility      `json:"visibility,omitempty"`
	SeriesState *SeriesState    `json:"seriesState,omitempty"`
	Users       map[string]User `json:"users,omitempty"`
	CreatedAt   int64           `json:"createdAt,omitempty"`
}

// UserIDs returns the present users in lexical order.
func (r Room) UserIDs() []string {
	ids := maps.Keys(r.Users)
	slices.Sort(ids)
	return ids
}

// EffectiveVisibility treats records written without a visibility as public.
func (r Room) EffectiveVisibility() Visibility {
	if r.Visibility == "" {
		return VisibilityPublic
	}
	return r.Visibility
}

// LiveRoom is a discovery listing entry.
type LiveRoom struct {
	ID          string     `json:"id"`
	HostID      string     `json:"hostId"`
	VideoID     string     `json:"videoId"`
	ViewerCount int        `json:"viewerCount"`
	IsPlaying   bool       `json:"isPlaying"`
	CreatedAt   int64      `json:"createdAt"`
	Visibility  Visibility `json:"visibility"`
}
