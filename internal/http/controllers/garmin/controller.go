// Package garmin contiene los controllers de /v1/garmin.
package garmin

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/http/dto"
	httperrors "github.com/dropDatabas3/fitlink/internal/http/errors"
	"github.com/dropDatabas3/fitlink/internal/http/helpers"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/services/connections"
	"github.com/dropDatabas3/fitlink/internal/services/login"
	syncsvc "github.com/dropDatabas3/fitlink/internal/services/sync"
)

const mfaMessage = "Garmin requires a verification code. Submit it to /v1/garmin/connect/mfa with the session_id."

// Controller maneja connect, MFA, estado, unlink y sync de Garmin.
type Controller struct {
	login       login.Service
	connections connections.Service
	sync        syncsvc.Service
	defaultDays int
}

func NewController(l login.Service, c connections.Service, s syncsvc.Service, defaultDays int) *Controller {
	if defaultDays <= 0 {
		defaultDays = 7
	}
	return &Controller{login: l, connections: c, sync: s, defaultDays: defaultDays}
}

// Connect maneja POST /v1/garmin/connect: 200 si conectó, 202 si hay que
// enviar el código MFA.
func (c *Controller) Connect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("GarminController.Connect"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}

	var req dto.GarminConnectRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	res, err := c.login.BeginLogin(ctx, uid, req.Username, req.Password, req.RegionVariant)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	c.writeLoginResult(w, res)
}

// ConnectMFA maneja POST /v1/garmin/connect/mfa.
func (c *Controller) ConnectMFA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("GarminController.ConnectMFA"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}

	var req dto.GarminMFARequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	res, err := c.login.ResumeLogin(ctx, uid, req.SessionID, req.Code)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	c.writeLoginResult(w, res)
}

// TestCredentials maneja POST /v1/garmin/test-credentials. Siempre 200; el
// resultado viaja en el body.
func (c *Controller) TestCredentials(w http.ResponseWriter, r *http.Request) {
	if _, ok := helpers.CurrentUser(w, r); !ok {
		return
	}

	var req dto.GarminConnectRequest
	if err := helpers.ReadJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	res := c.login.TestCredentials(r.Context(), req.Username, req.Password, req.RegionVariant)
	helpers.WriteJSON(w, http.StatusOK, dto.TestCredentialsResponse{
		Valid:   res.Valid,
		Reason:  string(res.Reason),
		Message: res.Message,
		Region:  res.Region,
	})
}

// GetConnection maneja GET /v1/garmin/connection.
func (c *Controller) GetConnection(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("GarminController.GetConnection"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}
	st, err := c.connections.GarminStatus(r.Context(), uid)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, st)
}

// DeleteConnection maneja DELETE /v1/garmin/connection.
func (c *Controller) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("GarminController.DeleteConnection"))

	uid, ok := helpers.CurrentUser(w, r)
	if !ok {
		return
	}
	deleted, err := c.connections.Unlink(r.Context(), uid, types.ProviderGarmin)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.UnlinkResponse{Deleted: deleted})
}

// Sync maneja POST /v1/garmin/sync. Los errores por día viajan en el
// resumen; solo los fatales devuelven error HTTP.
func (c *Controller) Sync(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("GarminController.Sync"))

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

	res, err := c.sync.SyncGarmin(r.Context(), uid, req.Days)
	if err != nil {
		c.handleServiceError(w, err, log)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

func (c *Controller) writeLoginResult(w http.ResponseWriter, res *login.BeginResult) {
	if res.Status == login.StatusMFARequired {
		helpers.WriteJSON(w, http.StatusAccepted, dto.GarminConnectResponse{
			Status:    res.Status,
			SessionID: res.SessionID,
			Message:   mfaMessage,
		})
		return
	}

	out := dto.GarminConnectResponse{Status: res.Status}
	if res.Connection != nil {
		out.DisplayName = res.Connection.DisplayName
		out.ExternalID = res.Connection.ExternalID
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

func (c *Controller) handleServiceError(w http.ResponseWriter, err error, log *zap.Logger) {
	appErr := httperrors.FromError(err)
	if appErr.HTTPStatus >= 500 {
		log.Error("garmin request failed", logger.Err(err))
	} else {
		log.Info("garmin request rejected", logger.String("code", appErr.Code), logger.Err(err))
	}
	httperrors.WriteError(w, appErr)
}
