package ordering

import (
	"errors"
	"net/http"

	"github.com/eugene-kirzhanov/vkcup21/internal/render"
	"github.com/eugene-kirzhanov/vkcup21/internal/taxi"
	"github.com/eugene-kirzhanov/vkcup21/pkg/common"
	"github.com/eugene-kirzhanov/vkcup21/pkg/websocket"
	"github.com/gin-gonic/gin"
)

const basePath = "/api/v1/sessions"

// Handler serves the session API.
type Handler struct {
	service *Service
	hub     *websocket.Hub
}

// NewHandler creates a handler and registers the stream commands on hub.
func NewHandler(service *Service, hub *websocket.Hub) *Handler {
	h := &Handler{service: service, hub: hub}
	h.registerStreamCommands()
	return h
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	sessions := r.Group(basePath)
	{
		sessions.POST("", h.CreateSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.CloseSession)
		sessions.POST("/:id/location", h.PublishLocation)
		sessions.POST("/:id/geocode", h.SubmitGeocode)
		sessions.POST("/:id/place", h.SubmitPlace)
		sessions.POST("/:id/destination/reveal", h.RevealDestination)
		sessions.PUT("/:id/map-visibility", h.SetMapVisibility)
		sessions.GET("/:id/permission", h.GetPermission)
		sessions.POST("/:id/permission", h.RequestPermission)
		sessions.GET("/:id/info-window.png", h.GetInfoWindowImage)
		sessions.GET("/:id/ws", h.Stream)
	}
}

// CreateSession opens a session.
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 && !common.BindJSON(c, &req) {
		return
	}

	session, err := h.service.Create(c.Request.Context(), CreateOptions{
		Locale:     req.Locale,
		MapVisible: req.MapVisible,
	})
	if common.HandleServiceError(c, err, "failed to create session") {
		return
	}

	common.CreatedResponse(c, newSessionResponse(session))
}

// GetSession returns a snapshot of the session.
func (h *Handler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	common.SuccessResponse(c, newSessionResponse(session))
}

// CloseSession closes the session and disconnects its streams.
func (h *Handler) CloseSession(c *gin.Context) {
	id, ok := common.ParseUUIDParam(c, "id", "session id")
	if !ok {
		return
	}

	if common.HandleServiceError(c, h.service.Close(c.Request.Context(), id.String()), "failed to close session") {
		return
	}
	h.hub.CloseSession(id.String())

	common.SuccessResponse(c, gin.H{"id": id.String(), "closed": true})
}

// PublishLocation feeds a device fix into the session.
func (h *Handler) PublishLocation(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req LocationRequest
	if !common.BindJSON(c, &req) {
		return
	}

	session.Feed.Publish(req.Position())
	c.JSON(http.StatusAccepted, common.Response{Success: true, Data: AcceptedResponse{Accepted: true}})
}

// SubmitGeocode queues a coordinate resolution.
func (h *Handler) SubmitGeocode(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req GeocodeRequest
	if !common.BindJSON(c, &req) {
		return
	}

	// Both values were checked by the validator.
	source, _ := taxi.ParseAddressSource(req.Source)
	addressType, _ := taxi.ParseAddressType(req.AddressType)

	accepted, err := session.Core.SubmitLocationGeocode(*req.Latitude, *req.Longitude, source, addressType)
	if handleSessionError(c, err) {
		return
	}
	c.JSON(http.StatusAccepted, common.Response{Success: true, Data: AcceptedResponse{Accepted: accepted}})
}

// SubmitPlace queues the resolution of a picked place.
func (h *Handler) SubmitPlace(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req PlaceRequest
	if !common.BindJSON(c, &req) {
		return
	}

	addressType, _ := taxi.ParseAddressType(req.AddressType)
	if handleSessionError(c, session.Core.SubmitPlaceGeocode(req.Place.toPlace(), addressType)) {
		return
	}
	c.JSON(http.StatusAccepted, common.Response{Success: true, Data: AcceptedResponse{Accepted: true}})
}

// RevealDestination makes the destination address visible.
func (h *Handler) RevealDestination(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	accepted, err := session.Core.RevealDestinationAddress()
	if handleSessionError(c, err) {
		return
	}
	c.JSON(http.StatusAccepted, common.Response{Success: true, Data: AcceptedResponse{Accepted: accepted}})
}

// SetMapVisibility sets the display context.
func (h *Handler) SetMapVisibility(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req MapVisibilityRequest
	if !common.BindJSON(c, &req) {
		return
	}

	session.Core.SetMapVisible(*req.Visible)
	common.SuccessResponse(c, gin.H{"map_visible": session.Core.IsMapVisible()})
}

// GetPermission reports whether the client should ask for location permission.
func (h *Handler) GetPermission(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	common.SuccessResponse(c, PermissionResponse{ShouldRequest: session.Core.ShouldRequestLocationPermission()})
}

// RequestPermission records that the permission was asked for.
func (h *Handler) RequestPermission(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	session.Core.OnLocationPermissionRequested()
	common.SuccessResponse(c, PermissionResponse{ShouldRequest: session.Core.ShouldRequestLocationPermission()})
}

// GetInfoWindowImage serves the rendered trip info as PNG.
func (h *Handler) GetInfoWindowImage(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	info := session.Core.InfoWindow().Value()
	if info == nil || info.Image == nil {
		common.AppErrorResponse(c, common.NewNotFoundError("no trip info yet", nil))
		return
	}

	data, err := render.EncodePNG(info.Image)
	if common.HandleServiceError(c, err, "failed to encode info window") {
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) session(c *gin.Context) (*Session, bool) {
	id, ok := common.ParseUUIDParam(c, "id", "session id")
	if !ok {
		return nil, false
	}

	session, err := h.service.Get(id.String())
	if common.HandleServiceError(c, err, "failed to read session") {
		return nil, false
	}
	return session, true
}

// handleSessionError maps submission errors. A closed session is gone.
func handleSessionError(c *gin.Context, err error) bool {
	if errors.Is(err, taxi.ErrSessionClosed) {
		common.AppErrorResponse(c, common.NewGoneError("session closed", err))
		return true
	}
	return common.HandleServiceError(c, err, "failed to submit request")
}
