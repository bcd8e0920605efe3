package middlewares

import (
	"net/http"
	"strings"

	httperrors "github.com/dropDatabas3/fitlink/internal/http/errors"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
)

// AccessParser valida un bearer y devuelve el user id (sub). *jwt.Issuer
// lo implementa.
type AccessParser interface {
	ParseAccess(raw string) (int64, error)
}

// RequireAuth exige Authorization: Bearer <jwt> y deja el user id en el
// contexto. También lo agrega al logger del request.
func RequireAuth(parser AccessParser) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := strings.TrimSpace(r.Header.Get("Authorization"))
			if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="fitlink", error="invalid_token", error_description="missing bearer token"`)
				httperrors.WriteError(w, httperrors.ErrUnauthorized)
				return
			}
			raw := strings.TrimSpace(ah[len("Bearer "):])

			userID, err := parser.ParseAccess(raw)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="fitlink", error="invalid_token", error_description="`+err.Error()+`"`)
				httperrors.WriteError(w, httperrors.ErrUnauthorized.WithCause(err))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(userID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
