package helpers

import (
	"net/http"

	httperrors "github.com/dropDatabas3/fitlink/internal/http/errors"
	"github.com/dropDatabas3/fitlink/internal/http/middlewares"
)

// CurrentUser devuelve el user id del bearer. Si falta escribe 401 y
// devuelve false.
func CurrentUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	uid := middlewares.GetUserID(r.Context())
	if uid <= 0 {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return 0, false
	}
	return uid, true
}
