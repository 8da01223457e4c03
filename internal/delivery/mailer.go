package delivery

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// Message is an outbound document email with an optional PDF attachment.
type Message struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// Mailer transmits a rendered document to a recipient. Implementations report
// an error when the message could not be handed off; the caller records the
// outcome in the document's email history either way.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through a plain SMTP relay. No mail library exists in this
// stack; the MIME assembly below covers exactly the one shape we send.
type SMTPMailer struct {
	addr string
	from string
}

func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from}
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	if m.addr == "" {
		return fmt.Errorf("smtp address not configured")
	}
	var b strings.Builder
	boundary := "quotient-attachment"
	fmt.Fprintf(&b, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.from, msg.To, msg.Subject)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, msg.Body)
	if len(msg.Attachment) > 0 {
		name := msg.AttachmentName
		if name == "" {
			name = "document.pdf"
		}
		fmt.Fprintf(&b, "--%s\r\nContent-Type: application/pdf\r\nContent-Transfer-Encoding: base64\r\nContent-Disposition: attachment; filename=%q\r\n\r\n", boundary, name)
		b.WriteString(base64.StdEncoding.EncodeToString(msg.Attachment))
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return smtp.SendMail(m.addr, nil, m.from, []string{msg.To}, []byte(b.String()))
}

// LogMailer records sends instead of transmitting them; the development and
// test default.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(log zerolog.Logger) *LogMailer { return &LogMailer{log: log} }

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Int("attachment_bytes", len(msg.Attachment)).Msg("mail send (log only)")
	return nil
}
