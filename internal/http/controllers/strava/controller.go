// Package strava contiene los controllers de /v1/strava.
package strava

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/http/dto"
	httperrors "github.com/dropDatabas3/fitlink/internal/http/errors"
	"github.com/dropDatabas3/fitlink/internal/http/helpers"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/services/connections"
	syncsvc "github.com/dropDatabas3/fitlink/internal/services/sync"
)

// Controller maneja la app OAuth del usuario, la autorización, estado,
// unlink y sync de Strava.
type Controller struct {
	connections connections.Service
	sync        syncsvc.Service
	defaultDays int
}

func NewController(c connections.Service, s syncsvc.Service, defaultDays int) *Controller {
	if defaultDays <= 0 {
		defaultDays = 30
	}
	return &Controller{connections: c, sync: s, defaultDays: defaultDays}
}

// GetConfig maneja GET /v1/strava/config.
func (c *Controller) GetConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.GetConfig"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}
	has, err := c.connections.HasStravaAppConfig(r.Context(), uid)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StravaConfigResponse{HasConfig: has})
}

// SaveConfig maneja POST /v1/strava/config.
func (c *Controller) SaveConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.SaveConfig"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}

	var req dto.StravaConfigRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	if err := c.connections.SaveStravaAppConfig(r.Context(), uid, req.ClientID, req.ClientSecret); err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StravaConfigResponse{HasConfig: true})
}

// Authorize maneja GET /v1/strava/authorize.
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.Authorize"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}
	u, err := c.connections.StravaAuthorizationURL(r.Context(), uid)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.StravaAuthorizeResponse{AuthorizationURL: u})
}

// Callback maneja POST /v1/strava/callback con el code y state del redirect.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.Callback"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}

	var req dto.StravaCallbackRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	st, err := c.connections.CompleteStravaAuthorization(r.Context(), uid, req.Code, req.State)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, st)
}

// GetConnection maneja GET /v1/strava/connection.
func (c *Controller) GetConnection(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.GetConnection"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}
	st, err := c.connections.StravaStatus(r.Context(), uid)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, st)
}

// DeleteConnection maneja DELETE /v1/strava/connection.
func (c *Controller) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.DeleteConnection"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}
	deleted, err := c.connections.Unlink(r.Context(), uid, types.ProviderStrava)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.UnlinkResponse{Deleted: deleted})
}

// Sync maneja POST /v1/strava/sync.
func (c *Controller) Sync(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("StravaController.Sync"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}

	var req dto.SyncRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.Days == 0 {
		req.Days = c.defaultDays
	}

	res, err := c.sync.SyncStrava(r.Context(), uid, req.Days)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

func (c *Controller) handleServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	appErr := httperrors.FromError(err)
	if appErr.HTTPStatus >= 500 {
		log.Error("strava request failed", logger.Err(err))
	} else {
		log.Info("strava request rejected", logger.String("code", appErr.Code), logger.Err(err))
	}
	httperrors.WriteError(w, appErr)
}
