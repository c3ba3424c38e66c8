package controller

import (
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

func (c controller) getRoomWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdMw(), c.loggerWSMw())
	mux.HandleError(c.writeWSError)

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)

	// player
	wsrouter.Handle(mux, "PLAYER_STATE", c.handlePlayerState)
	wsrouter.Handle(mux, "PROGRESS", c.handleProgress)
	wsrouter.Handle(mux, "PLAY", c.handlePlay)
	wsrouter.Handle(mux, "PAUSE", c.handlePause)
	wsrouter.Handle(mux, "SEEK_TO", c.handleSeekTo)
	wsrouter.Handle(mux, "SEEK_BY", c.handleSeekBy)
	wsrouter.Handle(mux, "SUBMIT_VIDEO", c.handleSubmitVideo)

	// series
	wsrouter.Handle(mux, "CHANGE_EPISODE", c.handleChangeEpisode)
	wsrouter.Handle(mux, "TOGGLE_AUTOPLAY", c.handleToggleAutoplay)
	wsrouter.Handle(mux, "CANCEL_AUTOPLAY", c.handleCancelAutoplay)
	wsrouter.Handle(mux, "GET_UPCOMING_EPISODES", c.handleGetUpcomingEpisodes)

	// room
	wsrouter.Handle(mux, "SEND_MESSAGE", c.handleSendMessage)
	wsrouter.Handle(mux, "UPDATE_VISIBILITY", c.handleUpdateVisibility)

	return mux
}

// getFeedWSRouter serves connections that only receive pushes.
func (c controller) getFeedWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdMw(), c.loggerWSMw())
	mux.HandleError(c.writeWSError)

	wsrouter.Handle(mux, "ALIVE", c.handleAlive)

	return mux
}
