package friends

import (
	"slices"

	"github.com/sharetube/watchparty/internal/service/presence"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type Request struct {
	ID             string        `json:"id"`
	FromUserID     string        `json:"fromUserId"`
	FromUserName   string        `json:"fromUserName"`
	FromUserAvatar string        `json:"fromUserAvatar,omitempty"`
	ToUserID       string        `json:"toUserId"`
	Status         RequestStatus `json:"status"`
	CreatedAt      int64         `json:"createdAt"`
}

// Friendship is the symmetric record whose existence defines the relation.
type Friendship struct {
	UsersKey  string   `json:"usersKey"`
	Users     []string `json:"users"`
	CreatedAt int64    `json:"createdAt"`
}

// entry is the denormalized friend edge stored under friends/{self}.
type entry struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	AddedAt int64  `json:"addedAt"`
}

type Friend struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Avatar        string          `json:"avatar,omitempty"`
	AddedAt       int64           `json:"addedAt"`
	Status        presence.Status `json:"status"`
	CurrentRoomID string          `json:"currentRoomId,omitempty"`
	LastSeen      int64           `json:"lastSeen,omitempty"`
}

func getUsersKey(a, b string) string {
	pair := []string{a, b}
	slices.Sort(pair)
	return pair[0] + "_" + pair[1]
}

func getRequestID(from, to string) string {
	return from + "_" + to
}
