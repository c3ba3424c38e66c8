package chat

import (
	"cmp"
	"errors"
	"slices"

	"github.com/sharetube/watchparty/internal/repository/tree"
)

var ErrInvalidType = errors.New("invalid message type")

type Type string

const (
	TypeMessage Type = "message"
	TypeJoin    Type = "join"
	TypeLeave   Type = "leave"
)

type Message struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Type      Type   `json:"type"`
}

func decodeMessages(snap tree.Snapshot) ([]Message, error) {
	if !snap.Exists() {
		return []Message{}, nil
	}

	var byKey map[string]Message
	if err := snap.Decode(&byKey); err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(byKey))
	for key, msg := range byKey {
		if msg.ID == "" {
			msg.ID = key
		}
		messages = append(messages, msg)
	}

	slices.SortFunc(messages, func(a, b Message) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return messages, nil
}
