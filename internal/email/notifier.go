// Package email avisa por mail al operador cuando una conexión queda en error
// o vencida (sync desatendido que ya no puede seguir sin el usuario).
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttpl "text/template"
	"time"

	"github.com/dropDatabas3/fitlink/internal/observability/logger"
)

// Notice describe el problema de una conexión.
type Notice struct {
	UserID   int64
	Provider string
	Status   string
	Reason   string
	At       time.Time
}

// Notifier manda avisos de conexiones con problemas.
type Notifier interface {
	ConnectionProblem(ctx context.Context, n Notice) error
}

// Noop no envía nada (SMTP sin configurar).
type Noop struct{}

func (Noop) ConnectionProblem(context.Context, Notice) error { return nil }

const subjectFmt = "[fitlink] %s connection %s for user %d"

var (
	textTpl = texttpl.Must(texttpl.New("notice.txt").Parse(
		`The {{.Provider}} connection of user {{.UserID}} is now "{{.Status}}".

Reason: {{.Reason}}
At: {{.At.Format "2006-01-02 15:04:05 MST"}}

Unattended syncs for this connection will fail until the user reconnects.
`))

	htmlTpl = template.Must(template.New("notice.html").Parse(
		`<p>The <b>{{.Provider}}</b> connection of user <b>{{.UserID}}</b> is now <b>{{.Status}}</b>.</p>
<p>Reason: {{.Reason}}<br>At: {{.At.Format "2006-01-02 15:04:05 MST"}}</p>
<p>Unattended syncs for this connection will fail until the user reconnects.</p>
`))
)

// MailNotifier renderiza el aviso y lo manda a una dirección fija.
type MailNotifier struct {
	sender Sender
	to     string
}

func NewMailNotifier(sender Sender, to string) *MailNotifier {
	return &MailNotifier{sender: sender, to: to}
}

// New devuelve Noop cuando falta host o destinatario.
func New(cfg SMTPConfig, to string) Notifier {
	if cfg.Host == "" || to == "" {
		return Noop{}
	}
	return NewMailNotifier(NewSMTPSender(cfg), to)
}

func (m *MailNotifier) ConnectionProblem(ctx context.Context, n Notice) error {
	if n.At.IsZero() {
		n.At = time.Now().UTC()
	}
	var txt, html bytes.Buffer
	if err := textTpl.Execute(&txt, n); err != nil {
		return err
	}
	if err := htmlTpl.Execute(&html, n); err != nil {
		return err
	}
	subject := fmt.Sprintf(subjectFmt, n.Provider, n.Status, n.UserID)
	if err := m.sender.Send(m.to, subject, html.String(), txt.String()); err != nil {
		return err
	}
	logger.From(ctx).Debug("connection notice sent",
		logger.Component("email"), logger.UserID(n.UserID), logger.Provider(n.Provider))
	return nil
}
