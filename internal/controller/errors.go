package controller

import (
	"errors"
	"net/http"

	"github.com/sharetube/watchparty/internal/catalog"
	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/sharetube/watchparty/internal/service/friends"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/internal/session"
	"github.com/sharetube/watchparty/pkg/wsrouter"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

var ErrValidationError = errors.New("validation error")

type userError struct {
	err     error
	status  int
	message string
}

// userErrors maps domain failures to what clients see. Order matters: the
// first match wins.
var userErrors = []userError{
	{session.ErrInvalidUser, http.StatusUnauthorized, "invalid user"},
	{session.ErrInvalidVideo, http.StatusBadRequest, "invalid video"},
	{session.ErrJoinFailed, http.StatusNotFound, "join failed"},
	{room.ErrInvalidRoomID, http.StatusBadRequest, room.ErrInvalidRoomID.Error()},
	{room.ErrRoomExists, http.StatusConflict, room.ErrRoomExists.Error()},
	{session.ErrCreateFailed, http.StatusInternalServerError, "create failed"},
	{session.ErrNotHost, http.StatusForbidden, session.ErrNotHost.Error()},
	{session.ErrNotSynced, http.StatusConflict, session.ErrNotSynced.Error()},
	{session.ErrNoSeries, http.StatusBadRequest, session.ErrNoSeries.Error()},
	{session.ErrEpisodeNotFound, http.StatusNotFound, session.ErrEpisodeNotFound.Error()},
	{session.ErrInvalidPlayerState, http.StatusBadRequest, session.ErrInvalidPlayerState.Error()},
	{room.ErrRoomNotFound, http.StatusNotFound, room.ErrRoomNotFound.Error()},
	{room.ErrInvalidVisibility, http.StatusBadRequest, room.ErrInvalidVisibility.Error()},
	{chat.ErrEmptyMessage, http.StatusBadRequest, chat.ErrEmptyMessage.Error()},
	{friends.ErrInvalidUser, http.StatusBadRequest, "invalid user"},
	{friends.ErrSelfRequest, http.StatusBadRequest, friends.ErrSelfRequest.Error()},
	{friends.ErrAlreadyFriends, http.StatusConflict, friends.ErrAlreadyFriends.Error()},
	{friends.ErrRequestNotFound, http.StatusNotFound, friends.ErrRequestNotFound.Error()},
	{catalog.ErrContentNotFound, http.StatusNotFound, catalog.ErrContentNotFound.Error()},
	{ytvideodata.ErrVideoNotFound, http.StatusNotFound, "invalid video"},
	{tree.ErrInvalidPath, http.StatusBadRequest, "invalid id"},
	{wsrouter.ErrUnknownMessageType, http.StatusBadRequest, wsrouter.ErrUnknownMessageType.Error()},
	{wsrouter.ErrInvalidPayload, http.StatusBadRequest, wsrouter.ErrInvalidPayload.Error()},
	{ErrValidationError, http.StatusBadRequest, ErrValidationError.Error()},
}

func toUserError(err error) (int, string) {
	for _, ue := range userErrors {
		if errors.Is(err, ue.err) {
			return ue.status, ue.message
		}
	}

	return http.StatusInternalServerError, "internal error"
}
