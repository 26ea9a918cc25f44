package ordering

import (
	"context"
	"encoding/json"

	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/async"
	"github.com/eugene-kirzhanov/vkcup21/pkg/logger"
	"github.com/eugene-kirzhanov/vkcup21/pkg/validation"
	"github.com/eugene-kirzhanov/vkcup21/pkg/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Stream message types.
const (
	MessageSourceAddress      = "source_address"
	MessageDestinationAddress = "destination_address"
	MessageRoute              = "route"
	MessageInfoWindow         = "info_window"
	MessageNearbyPlaces       = "nearby_places"
	MessageMyLocation         = "my_location"
	MessageError              = "error"

	// Commands accepted from the client.
	CommandLocation      = "location"
	CommandMapVisibility = "map_visibility"
)

// Stream upgrades to a WebSocket and pushes every session stream to the
// client until either side goes away.
func (h *Handler) Stream(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	client, err := websocket.Serve(c, h.hub, session.ID)
	if err != nil {
		logger.WarnContext(c.Request.Context(), "session stream upgrade failed", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	streamConnectionsActive.Inc()

	// The request context ends with this handler, the stream outlives it.
	ctx := logger.ContextWithSessionID(context.WithoutCancel(c.Request.Context()), session.ID)
	group := async.NewGroup(ctx)
	core := session.Core

	group.Go("stream-source-address", func(ctx context.Context) {
		forward(ctx, client, MessageSourceAddress, core.SourceAddress(), identity[*taxi.Address])
	})
	group.Go("stream-destination-address", func(ctx context.Context) {
		forward(ctx, client, MessageDestinationAddress, core.DestinationAddress(), identity[*taxi.Address])
	})
	group.Go("stream-route", func(ctx context.Context) {
		forward(ctx, client, MessageRoute, core.Route(), func(r *taxi.Route) any { return routeFeature(r) })
	})
	group.Go("stream-info-window", func(ctx context.Context) {
		forward(ctx, client, MessageInfoWindow, core.InfoWindow(), func(w *taxi.InfoWindow) any {
			return infoWindowResponse(session.ID, w)
		})
	})
	group.Go("stream-nearby-places", func(ctx context.Context) {
		forward(ctx, client, MessageNearbyPlaces, core.NearbyPlaces(), identity[[]taxi.Place])
	})
	group.Go("stream-my-location", func(ctx context.Context) {
		forward(ctx, client, MessageMyLocation, core.MyLocation(), identity[*taxi.Position])
	})

	go func() {
		select {
		case <-client.Done():
		case <-core.Done():
			h.hub.CloseSession(session.ID)
		}
		group.Stop()
		streamConnectionsActive.Dec()
	}()
}

func identity[T any](v T) any { return v }

// forward sends every value of stream to client until ctx is done or the
// client is dropped.
func forward[T any](ctx context.Context, client *websocket.Client, msgType string, stream taxi.Stream[T], payload func(T) any) {
	for v := range stream.Subscribe(ctx) {
		msg, err := websocket.NewMessage(msgType, client.SessionID, payload(v))
		if err != nil {
			logger.ErrorContext(ctx, "failed to encode stream message", zap.String("type", msgType), zap.Error(err))
			continue
		}
		if !client.SendMessage(msg) {
			return
		}
	}
}

func (h *Handler) registerStreamCommands() {
	h.hub.RegisterHandler(CommandLocation, func(client *websocket.Client, msg *websocket.Message) {
		var req LocationRequest
		session, ok := h.decodeCommand(client, msg, &req)
		if !ok {
			return
		}
		session.Feed.Publish(req.Position())
	})

	h.hub.RegisterHandler(CommandMapVisibility, func(client *websocket.Client, msg *websocket.Message) {
		var req MapVisibilityRequest
		session, ok := h.decodeCommand(client, msg, &req)
		if !ok {
			return
		}
		session.Core.SetMapVisible(*req.Visible)
	})
}

// decodeCommand resolves the client's session and decodes msg into req. On
// failure the client gets an error message.
func (h *Handler) decodeCommand(client *websocket.Client, msg *websocket.Message, req interface{}) (*Session, bool) {
	session, err := h.service.Get(client.SessionID)
	if err != nil {
		sendError(client, msg.Type, "session not found")
		return nil, false
	}

	if err := json.Unmarshal(msg.Data, req); err != nil {
		sendError(client, msg.Type, "invalid payload")
		return nil, false
	}
	if err := validation.ValidateStruct(req); err != nil {
		sendError(client, msg.Type, err.Error())
		return nil, false
	}
	return session, true
}

func sendError(client *websocket.Client, command, message string) {
	msg, err := websocket.NewMessage(MessageError, client.SessionID, gin.H{"command": command, "message": message})
	if err != nil {
		return
	}
	client.SendMessage(msg)
}
