package friends

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/service/presence"
	"golang.org/x/exp/maps"
)

var (
	ErrInvalidUser     = errors.New("invalid user")
	ErrSelfRequest     = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends  = errors.New("already friends")
	ErrRequestNotFound = errors.New("friend request not found")
)

type iTreeRepo interface {
	Set(ctx context.Context, path string, value any) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (tree.Snapshot, error)
	Subscribe(ctx context.Context, path string, query tree.Query, cb tree.Listener) (func(), error)
}

type iPresenceService interface {
	GetAllPresence(ctx context.Context) (map[string]presence.Presence, error)
	SubscribeToPresence(ctx context.Context, cb func(map[string]presence.Presence)) (func(), error)
}

type service struct {
	repo     iTreeRepo
	presence iPresenceService
	now      func() time.Time
	logger   *slog.Logger
}

func NewService(repo iTreeRepo, presenceService iPresenceService, logger *slog.Logger) *service {
	return &service{
		repo:     repo,
		presence: presenceService,
		now:      time.Now,
		logger:   logger,
	}
}

func getFriendsPath(userID string) string {
	return "friends/" + userID
}

func getFriendPath(userID, friendID string) string {
	return "friends/" + userID + "/" + friendID
}

func getRequestsPath(userID string) string {
	return "friendRequests/" + userID
}

func getRequestPath(userID, requestID string) string {
	return "friendRequests/" + userID + "/" + requestID
}

func getFriendshipPath(a, b string) string {
	return "friendships/" + getUsersKey(a, b)
}

type SendFriendRequestParams struct {
	FromUserID     string
	FromUserName   string
	FromUserAvatar string
	ToUserID       string
}

func (s service) SendFriendRequest(ctx context.Context, params *SendFriendRequestParams) (Request, error) {
	if params.FromUserID == "" || params.ToUserID == "" {
		return Request{}, ErrInvalidUser
	}
	if params.FromUserID == params.ToUserID {
		return Request{}, ErrSelfRequest
	}

	friends, err := s.IsFriend(ctx, params.FromUserID, params.ToUserID)
	if err != nil {
		return Request{}, err
	}
	if friends {
		return Request{}, ErrAlreadyFriends
	}

	req := Request{
		ID:             getRequestID(params.FromUserID, params.ToUserID),
		FromUserID:     params.FromUserID,
		FromUserName:   params.FromUserName,
		FromUserAvatar: params.FromUserAvatar,
		ToUserID:       params.ToUserID,
		Status:         RequestPending,
		CreatedAt:      s.now().UnixMilli(),
	}

	if err := s.repo.Set(ctx, getRequestPath(req.ToUserID, req.ID), req); err != nil {
		s.logger.InfoContext(ctx, "failed to set friend request", "error", err)
		return Request{}, fmt.Errorf("failed to send friend request: %w", err)
	}

	return req, nil
}

type AcceptFriendRequestParams struct {
	UserID     string
	UserName   string
	UserAvatar string
	RequestID  string
}

// AcceptFriendRequest runs the acceptance steps in order: friendship record,
// both friend entries, request removal. Each step is idempotent, so a failed
// acceptance can be retried. A request that is gone while the friendship
// exists counts as accepted.
func (s service) AcceptFriendRequest(ctx context.Context, params *AcceptFriendRequestParams) error {
	if params.UserID == "" {
		return ErrInvalidUser
	}

	req, err := s.getRequest(ctx, params.UserID, params.RequestID)
	if errors.Is(err, ErrRequestNotFound) {
		return s.acceptedOrMissing(ctx, params)
	}
	if err != nil {
		return err
	}

	now := s.now().UnixMilli()

	friendshipPath := getFriendshipPath(req.FromUserID, req.ToUserID)
	snap, err := s.repo.Get(ctx, friendshipPath)
	if err != nil {
		return err
	}
	if !snap.Exists() {
		users := []string{req.FromUserID, req.ToUserID}
		slices.Sort(users)
		if err := s.repo.Set(ctx, friendshipPath, Friendship{
			UsersKey:  getUsersKey(req.FromUserID, req.ToUserID),
			Users:     users,
			CreatedAt: now,
		}); err != nil {
			s.logger.InfoContext(ctx, "failed to set friendship", "error", err)
			return fmt.Errorf("failed to create friendship: %w", err)
		}
	}

	if err := s.repo.Set(ctx, getFriendPath(req.FromUserID, req.ToUserID), entry{
		ID:      req.ToUserID,
		Name:    params.UserName,
		Avatar:  params.UserAvatar,
		AddedAt: now,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to set friend entry", "error", err)
		return fmt.Errorf("failed to add friend entry: %w", err)
	}

	if err := s.repo.Set(ctx, getFriendPath(req.ToUserID, req.FromUserID), entry{
		ID:      req.FromUserID,
		Name:    req.FromUserName,
		Avatar:  req.FromUserAvatar,
		AddedAt: now,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to set friend entry", "error", err)
		return fmt.Errorf("failed to add friend entry: %w", err)
	}

	if err := s.repo.Remove(ctx, getRequestPath(params.UserID, req.ID)); err != nil {
		s.logger.InfoContext(ctx, "failed to remove friend request", "error", err)
		return fmt.Errorf("failed to remove friend request: %w", err)
	}

	return nil
}

func (s service) acceptedOrMissing(ctx context.Context, params *AcceptFriendRequestParams) error {
	sender := requestSender(params.RequestID, params.UserID)
	if sender == "" {
		return ErrRequestNotFound
	}

	friends, err := s.IsFriend(ctx, params.UserID, sender)
	if err != nil {
		return err
	}
	if !friends {
		return ErrRequestNotFound
	}

	return nil
}

// requestSender recovers the sender from a from_to request id addressed to userID.
func requestSender(requestID, userID string) string {
	suffix := "_" + userID
	sender, ok := strings.CutSuffix(requestID, suffix)
	if !ok || sender == "" {
		return ""
	}

	return sender
}

func (s service) RejectFriendRequest(ctx context.Context, userID, requestID string) error {
	if userID == "" {
		return ErrInvalidUser
	}

	if err := s.repo.Remove(ctx, getRequestPath(userID, requestID)); err != nil {
		s.logger.InfoContext(ctx, "failed to remove friend request", "error", err)
		return fmt.Errorf("failed to reject friend request: %w", err)
	}

	return nil
}

func (s service) RemoveFriend(ctx context.Context, userID, friendID string) error {
	if userID == "" || friendID == "" {
		return ErrInvalidUser
	}

	for _, path := range []string{
		getFriendshipPath(userID, friendID),
		getFriendPath(userID, friendID),
		getFriendPath(friendID, userID),
	} {
		if err := s.repo.Remove(ctx, path); err != nil {
			s.logger.InfoContext(ctx, "failed to remove friend", "path", path, "error", err)
			return fmt.Errorf("failed to remove friend: %w", err)
		}
	}

	return nil
}

func (s service) IsFriend(ctx context.Context, userID, otherID string) (bool, error) {
	snap, err := s.repo.Get(ctx, getFriendshipPath(userID, otherID))
	if err != nil {
		return false, err
	}

	return snap.Exists(), nil
}

func (s service) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	snap, err := s.repo.Get(ctx, getFriendsPath(userID))
	if err != nil {
		return nil, err
	}

	return snap.Keys(), nil
}

// GetFriends returns the friend list merged with presence.
func (s service) GetFriends(ctx context.Context, userID string) ([]Friend, error) {
	if userID == "" {
		return nil, ErrInvalidUser
	}

	snap, err := s.repo.Get(ctx, getFriendsPath(userID))
	if err != nil {
		return nil, err
	}

	entries := make(map[string]entry)
	if snap.Exists() {
		if err := snap.Decode(&entries); err != nil {
			return nil, fmt.Errorf("failed to decode friends: %w", err)
		}
	}

	presences, err := s.presence.GetAllPresence(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}

	return mergeFriends(entries, presences), nil
}

func (s service) getRequest(ctx context.Context, userID, requestID string) (Request, error) {
	snap, err := s.repo.Get(ctx, getRequestPath(userID, requestID))
	if err != nil {
		return Request{}, err
	}
	if !snap.Exists() {
		return Request{}, ErrRequestNotFound
	}

	var req Request
	if err := snap.Decode(&req); err != nil {
		return Request{}, err
	}
	if req.ID == "" {
		req.ID = requestID
	}

	return req, nil
}

// SubscribeToFriendRequests delivers pending requests addressed to the user,
// newest first.
func (s service) SubscribeToFriendRequests(ctx context.Context, userID string, cb func([]Request)) (func(), error) {
	return s.repo.Subscribe(ctx, getRequestsPath(userID), tree.Query{}, func(snap tree.Snapshot) {
		requests := []Request{}
		if snap.Exists() {
			var byID map[string]Request
			if err := snap.Decode(&byID); err != nil {
				s.logger.ErrorContext(ctx, "failed to decode friend requests", "error", err)
				return
			}

			for id, req := range byID {
				if req.Status != RequestPending {
					continue
				}
				if req.ID == "" {
					req.ID = id
				}
				requests = append(requests, req)
			}
		}

		slices.SortFunc(requests, func(a, b Request) int {
			if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})

		cb(requests)
	})
}

// SubscribeToFriends joins the user's friend entries with global presence and
// delivers the merged list whenever either side changes.
func (s service) SubscribeToFriends(ctx context.Context, userID string, cb func([]Friend)) (func(), error) {
	var (
		mu        sync.Mutex
		entries   map[string]entry
		presences map[string]presence.Presence
	)

	emit := func() {
		if entries == nil || presences == nil {
			return
		}
		cb(mergeFriends(entries, presences))
	}

	unsubscribeFriends, err := s.repo.Subscribe(ctx, getFriendsPath(userID), tree.Query{}, func(snap tree.Snapshot) {
		next := make(map[string]entry)
		if snap.Exists() {
			if err := snap.Decode(&next); err != nil {
				s.logger.ErrorContext(ctx, "failed to decode friends", "error", err)
				return
			}
		}

		mu.Lock()
		defer mu.Unlock()
		entries = next
		emit()
	})
	if err != nil {
		return nil, err
	}

	unsubscribePresence, err := s.presence.SubscribeToPresence(ctx, func(all map[string]presence.Presence) {
		mu.Lock()
		defer mu.Unlock()
		presences = all
		emit()
	})
	if err != nil {
		unsubscribeFriends()
		return nil, err
	}

	return func() {
		unsubscribeFriends()
		unsubscribePresence()
	}, nil
}

func mergeFriends(entries map[string]entry, presences map[string]presence.Presence) []Friend {
	ids := maps.Keys(entries)
	slices.Sort(ids)

	friends := make([]Friend, 0, len(ids))
	for _, id := range ids {
		e := entries[id]
		p, ok := presences[id]
		if !ok || p.Status == "" {
			p.Status = presence.StatusOffline
		}

		friendID := e.ID
		if friendID == "" {
			friendID = id
		}

		friends = append(friends, Friend{
			ID:            friendID,
			Name:          e.Name,
			Avatar:        e.Avatar,
			AddedAt:       e.AddedAt,
			Status:        p.Status,
			CurrentRoomID: p.CurrentRoomID,
			LastSeen:      p.LastSeen,
		})
	}

	slices.SortStableFunc(friends, func(a, b Friend) int {
		return cmp.Compare(a.Status.Rank(), b.Status.Rank())
	})

	return friends
}
