package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BarberFox/internal/pkg/env"
)

// SMTPMailer sends emails via SMTP
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailerFromEnv() *SMTPMailer {
	m := &SMTPMailer{
		Host:     env.GetEnv("SMTP_HOST", ""),
		Port:     env.GetEnv("SMTP_PORT", "587"),
		Username: env.GetEnv("SMTP_USERNAME", ""),
		Password: env.GetEnv("SMTP_PASSWORD", ""),
		Sender:   env.GetEnv("SMTP_SENDER", ""),
	}
	if m.Sender == "" {
		m.Sender = "no-reply@localhost"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", m.Sender)
	}
	return m
}

// Send delivers one HTML message.
func (m *SMTPMailer) Send(to, subject, body string) error {
	if m.Host == "" {
		return fmt.Errorf("SMTP_HOST is not configured")
	}

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)
	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.Sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=UTF-8\r\n\r\n" +
			body,
	)

	send := m.send
	if send == nil {
		send = smtp.SendMail
	}
	if err := send(addr, auth, m.Sender, []string{to}, msg); err != nil {
		log.Errorf("[Mail] SMTP send error: %v", err)
		return err
	}
	log.Infof("[Mail] Email sent to %s via %s", to, addr)
	return nil
}

// ManualReport is what the admin sees about a submitted bank transfer.
type ManualReport struct {
	ReportID      uint
	OwnerID       uint
	Amount        string
	Currency      string
	ReferenceText string
	ProofURL      string
	ReviewURL     string
}

var manualReportTemplate = template.Must(template.New("manual_report").Parse(`<p>Nuevo reporte de transferencia #{{.ReportID}}</p>
<ul>
<li>Propietario: {{.OwnerID}}</li>
<li>Monto: {{.Amount}} {{.Currency}}</li>
{{if .ReferenceText}}<li>Referencia: {{.ReferenceText}}</li>{{end}}
{{if .ProofURL}}<li>Comprobante: <a href="{{.ProofURL}}">{{.ProofURL}}</a></li>{{end}}
</ul>
{{if .ReviewURL}}<p><a href="{{.ReviewURL}}">Revisar reportes pendientes</a></p>{{end}}`))

// ManualReportMessage renders subject and HTML body of the admin notice.
func ManualReportMessage(r ManualReport) (string, string, error) {
	var buf bytes.Buffer
	if err := manualReportTemplate.Execute(&buf, r); err != nil {
		return "", "", err
	}
	subject := fmt.Sprintf("Pago manual pendiente #%d (%s %s)", r.ReportID, r.Amount, r.Currency)
	return subject, buf.String(), nil
}
