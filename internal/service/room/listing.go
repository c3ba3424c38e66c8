package room

import (
	"cmp"
	"context"
	"slices"

	"github.com/sharetube/watchparty/internal/repository/tree"
)

func (s service) listingQuery() tree.Query {
	return tree.Query{OrderByChild: "createdAt", LimitToLast: s.listingLimit}
}

// SubscribeToRooms delivers the most recently created rooms, newest first.
func (s service) SubscribeToRooms(ctx context.Context, cb func([]LiveRoom)) (func(), error) {
	return s.repo.Subscribe(ctx, roomsKey, s.listingQuery(), func(snap tree.Snapshot) {
		rooms, err := decodeLiveRooms(snap)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to decode rooms", "error", err)
			return
		}

		cb(rooms)
	})
}

func (s service) ListRooms(ctx context.Context) ([]LiveRoom, error) {
	snap, err := s.repo.Get(ctx, roomsKey)
	if err != nil {
		return nil, err
	}

	return decodeLiveRooms(tree.NewSnapshot(snap.Path(), s.listingQuery().Apply(snap.Value())))
}

func decodeLiveRooms(snap tree.Snapshot) ([]LiveRoom, error) {
	if !snap.Exists() {
		return []LiveRoom{}, nil
	}

	var byID map[string]Room
	if err := snap.Decode(&byID); err != nil {
		return nil, err
	}

	rooms := make([]LiveRoom, 0, len(byID))
	for id, r := range byID {
		createdAt := r.CreatedAt
		if createdAt == 0 {
			createdAt = r.LastUpdate
		}

		rooms = append(rooms, LiveRoom{
			ID:          id,
			HostID:      r.HostID,
			VideoID:     r.VideoID,
			ViewerCount: len(r.Users),
			IsPlaying:   r.IsPlaying,
			CreatedAt:   createdAt,
			Visibility:  r.EffectiveVisibility(),
		})
	}

	slices.SortFunc(rooms, func(a, b LiveRoom) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return rooms, nil
}
