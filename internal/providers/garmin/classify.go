package garmin

import (
	"regexp"
	"strings"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
)

// Classification es el resultado de ClassifyLoginError.
type Classification struct {
	MFARequired bool
	Reason      linkerr.AuthReason
	Message     string
}

// ClassifyLoginError mapea el texto de un login fallido a una razón.
//
// Es best-effort: Garmin no expone códigos estables para estos casos, así que
// se buscan substrings en el mensaje. El orden importa (MFA antes que 401,
// porque la página de MFA suele llegar con 401) y está fijado por tests.
func ClassifyLoginError(msg string, regionVariant bool) Classification {
	lower := strings.ToLower(msg)
	region := regionName(regionVariant)

	switch {
	case isMFAIndicator(msg):
		return Classification{
			MFARequired: true,
			Reason:      linkerr.ReasonMFARequired,
			Message:     "Your " + region + " account requires 2FA. Please provide an MFA code.",
		}
	case strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized"):
		if regionVariant {
			return Classification{
				Reason:  linkerr.ReasonUnsupportedRegion,
				Message: "API login failed for " + region + ". Credentials may work on web, but SSO for this region is not supported.",
			}
		}
		return Classification{
			Reason:  linkerr.ReasonInvalidCredentials,
			Message: "Invalid credentials for " + region,
		}
	case strings.Contains(msg, "SSL") || strings.Contains(msg, "certificate"):
		return Classification{
			Reason:  linkerr.ReasonNetwork,
			Message: "SSL certificate error. Check your network connection.",
		}
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		return Classification{
			Reason:  linkerr.ReasonNetwork,
			Message: "Network error. Please check your internet connection.",
		}
	default:
		return Classification{
			Reason:  linkerr.ReasonUnknown,
			Message: "Login failed: " + msg,
		}
	}
}

// isMFAIndicator: MFA / 2FA / OTP exactos, "authenticator" sin importar mayúsculas.
func isMFAIndicator(s string) bool {
	return strings.Contains(s, "MFA") || strings.Contains(s, "2FA") || strings.Contains(s, "OTP") ||
		strings.Contains(strings.ToLower(s), "authenticator")
}

var titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// htmlTitle extrae el <title> de una respuesta HTML del SSO.
func htmlTitle(body string) string {
	m := titleRe.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func regionName(regionVariant bool) string {
	if regionVariant {
		return "Garmin China"
	}
	return "Garmin International"
}

// RegionLabel es la etiqueta que se devuelve en test-credentials.
func RegionLabel(regionVariant bool) string {
	if regionVariant {
		return "Garmin China (garmin.cn)"
	}
	return "Garmin International (garmin.com)"
}
