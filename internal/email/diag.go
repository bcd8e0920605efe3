package email

import (
	"errors"
	"net"
	"strings"
)

// SMTPDiag resume un error SMTP para el log.
type SMTPDiag struct {
	Code      string // auth|tls|dial|timeout|rate_limited|invalid_recipient|rejected|network|unknown
	Temporary bool
}

// DiagnoseSMTP clasifica un error del servidor de salida. Best-effort sobre el texto.
func DiagnoseSMTP(err error) SMTPDiag {
	if err == nil {
		return SMTPDiag{Code: "unknown"}
	}
	s := strings.ToLower(err.Error())

	var ne net.Error
	isNet := errors.As(err, &ne)
	if (isNet && ne.Timeout()) || strings.Contains(s, "timeout") {
		return SMTPDiag{Code: "timeout", Temporary: true}
	}

	switch {
	case strings.Contains(s, "connection refused"),
		strings.Contains(s, "no such host"),
		strings.Contains(s, "dial tcp"):
		return SMTPDiag{Code: "dial", Temporary: true}

	case strings.Contains(s, "x509:"),
		strings.Contains(s, "tls") && (strings.Contains(s, "handshake") || strings.Contains(s, "certificate")):
		return SMTPDiag{Code: "tls"}

	case strings.Contains(s, "5.7.8"), strings.Contains(s, "535"),
		strings.Contains(s, "authentication failed"),
		strings.Contains(s, "auth") && strings.Contains(s, "failed"):
		return SMTPDiag{Code: "auth"}

	case strings.Contains(s, "4.7.0"), strings.Contains(s, "rate limit"),
		strings.Contains(s, "try again later"),
		strings.Contains(s, "451"), strings.Contains(s, "421"):
		return SMTPDiag{Code: "rate_limited", Temporary: true}

	case strings.Contains(s, "5.1.1"), strings.Contains(s, "user unknown"),
		strings.Contains(s, "mailbox not found"):
		return SMTPDiag{Code: "invalid_recipient"}

	case strings.Contains(s, "5.7.1"), strings.Contains(s, "message rejected"),
		strings.Contains(s, "dmarc"), strings.Contains(s, "spf"):
		return SMTPDiag{Code: "rejected"}
	}

	if isNet {
		return SMTPDiag{Code: "network", Temporary: true}
	}
	return SMTPDiag{Code: "unknown"}
}
