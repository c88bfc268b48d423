package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"homecontrol/devices"
	"homecontrol/models"
	"homecontrol/service"
)

// Handlers binds the HTTP surface to the orchestrator and the auxiliary
// device registry.
type Handlers struct {
	log   zerolog.Logger
	orch  *service.Orchestrator
	bulbs *devices.Registry
	hub   *WebSocketHub
}

func NewHandlers(orch *service.Orchestrator, bulbs *devices.Registry, hub *WebSocketHub, log zerolog.Logger) *Handlers {
	return &Handlers{
		log:   log.With().Str("component", "api").Logger(),
		orch:  orch,
		bulbs: bulbs,
		hub:   hub,
	}
}

// statusFor maps operation errors onto HTTP status codes. The kind carries
// through in the body so callers can distinguish retry-worthy failures.
func statusFor(err error) int {
	if errors.Is(err, models.ErrDeviceNotFound) || errors.Is(err, devices.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, models.ErrUnknownAction) {
		return http.StatusBadRequest
	}
	if errors.Is(err, context.Canceled) {
		return 499 // client closed request
	}
	switch models.KindOf(err) {
	case models.ErrKindBusy:
		return http.StatusConflict
	case models.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrKindRejected:
		return http.StatusBadRequest
	case models.ErrKindResolution:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (h *Handlers) fail(c *gin.Context, opID string, err error) {
	h.log.Warn().Str("op_id", opID).Err(err).Msg("operation failed")
	c.JSON(statusFor(err), models.ErrorResponse(err))
}

// notify pushes a device event to WebSocket subscribers.
func (h *Handlers) notify(deviceID, operation, opID string, data interface{}) {
	h.hub.Broadcast(Event{
		Type:      "operation",
		DeviceID:  deviceID,
		Operation: operation,
		Data:      gin.H{"op_id": opID, "result": data},
	})
}

// GetDevices lists every configured TV with a liveness probe.
func (h *Handlers) GetDevices(c *gin.Context) {
	c.JSON(http.StatusOK, models.SuccessResponse(h.orch.ListDevices(c.Request.Context())))
}

type playRequest struct {
	App   string `json:"app"`
	Query string `json:"query"` // free-text title or a direct content URL
}

// Play launches content on a TV.
func (h *Handlers) Play(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	var req playRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err))
		return
	}

	h.log.Info().Str("op_id", opID).Str("device", deviceID).
		Str("app", req.App).Str("query", req.Query).Msg("play requested")

	result, err := h.orch.Play(c.Request.Context(), deviceID, req.App, req.Query)
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	h.notify(deviceID, "play", opID, result)
	c.JSON(http.StatusOK, models.SuccessResponse(result))
}

type navigateRequest struct {
	Direction string `json:"direction"`
}

// Navigate sends one remote-control key press.
func (h *Handlers) Navigate(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err))
		return
	}

	if err := h.orch.Navigate(c.Request.Context(), deviceID, req.Direction); err != nil {
		h.fail(c, opID, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("sent "+req.Direction))
}

type volumeRequest struct {
	Action string `json:"action"`
}

// Volume sends one volume key press.
func (h *Handlers) Volume(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	var req volumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err))
		return
	}

	if err := h.orch.Volume(c.Request.Context(), deviceID, req.Action); err != nil {
		h.fail(c, opID, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("volume "+req.Action))
}

type textRequest struct {
	Text string `json:"text"`
}

// TypeText types literal text into the focused input field.
func (h *Handlers) TypeText(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err))
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(errors.New("text is required")))
		return
	}

	if err := h.orch.TypeText(c.Request.Context(), deviceID, req.Text); err != nil {
		h.fail(c, opID, err)
		return
	}
	c.JSON(http.StatusOK, models.MessageResponse("text entered"))
}

// PowerOn wakes a TV.
func (h *Handlers) PowerOn(c *gin.Context) {
	h.power(c, h.orch.TurnOn, "power_on")
}

// PowerOff puts a TV to sleep.
func (h *Handlers) PowerOff(c *gin.Context) {
	h.power(c, h.orch.TurnOff, "power_off")
}

func (h *Handlers) power(c *gin.Context, op func(context.Context, string) (service.PowerResult, error), name string) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	result, err := op(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	h.notify(deviceID, name, opID, result)
	c.JSON(http.StatusOK, models.SuccessResponse(result))
}

// PlayPause toggles playback.
func (h *Handlers) PlayPause(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	result, err := h.orch.PlayPause(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	h.notify(deviceID, "play_pause", opID, result)
	c.JSON(http.StatusOK, models.SuccessResponse(result))
}

// Status reports the structured device state.
func (h *Handlers) Status(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	state, err := h.orch.Status(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(state))
}

// Screenshot captures the screen and returns it as PNG.
func (h *Handlers) Screenshot(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()

	data, err := h.orch.Screenshot(c.Request.Context(), deviceID)
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// ListApps returns the device's streaming-app inventory. ?refresh=true
// forces a rescan.
func (h *Handlers) ListApps(c *gin.Context) {
	deviceID := c.Param("id")
	opID := uuid.NewString()
	force := c.Query("refresh") == "true"

	apps, err := h.orch.ListApps(c.Request.Context(), deviceID, force)
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(apps))
}

// GetBulbs lists auxiliary light devices with their current state.
func (h *Handlers) GetBulbs(c *gin.Context) {
	ctx := c.Request.Context()
	var states []devices.State
	for _, id := range h.bulbs.IDs() {
		bulb, err := h.bulbs.Get(id)
		if err != nil {
			continue
		}
		state, err := bulb.State(ctx)
		if err != nil {
			state.Reachable = false
			h.log.Debug().Str("bulb", id).Err(err).Msg("bulb state read failed")
		}
		states = append(states, state)
	}
	c.JSON(http.StatusOK, models.SuccessResponse(states))
}

type bulbRequest struct {
	State      string `json:"state"`      // "on" or "off"
	Brightness *int   `json:"brightness"` // optional 0-100
}

// SetBulb applies a state change to one bulb.
func (h *Handlers) SetBulb(c *gin.Context) {
	bulbID := c.Param("id")
	opID := uuid.NewString()

	bulb, err := h.bulbs.Get(bulbID)
	if err != nil {
		h.fail(c, opID, err)
		return
	}

	var req bulbRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err))
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.Brightness != nil:
		err = bulb.SetBrightness(ctx, *req.Brightness)
	case req.State == "on":
		err = bulb.TurnOn(ctx)
	case req.State == "off":
		err = bulb.TurnOff(ctx)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse(
			errors.New(`expected "state": "on"|"off" or a "brightness" value`)))
		return
	}
	if err != nil {
		h.fail(c, opID, err)
		return
	}
	h.notify(bulbID, "bulb_set", opID, req)
	c.JSON(http.StatusOK, models.MessageResponse("applied"))
}
