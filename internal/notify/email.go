package notify

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
)

// SMTPSender relays through a plain SMTP endpoint. The rendered message is a
// full mail body including headers (see render.go).
type SMTPSender struct {
	Addr string
	From string
}

func (s *SMTPSender) Send(ctx context.Context, recipient, message string) error {
	if s.Addr == "" {
		return Permanent(errors.New("smtp relay not configured"))
	}
	if err := ctx.Err(); err != nil {
		return Transient(err)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\n%s", s.From, recipient, message)
	if err := smtp.SendMail(s.Addr, nil, s.From, []string{recipient}, []byte(msg)); err != nil {
		// SMTP semantics: 4xx replies are temporary, 5xx are final.
		var tp *textproto.Error
		if errors.As(err, &tp) && tp.Code >= 500 {
			return Permanent(err)
		}
		return Transient(err)
	}
	return nil
}
