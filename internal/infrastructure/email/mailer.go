package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jiahaoliu666/aws-blog-sub002/internal/config"
	"golang.org/x/time/rate"
)

// Mailer sends transactional email.
type Mailer interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

type mailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		from:     cfg.SMTPFrom,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
	}
}

func (m *mailer) SendEmail(ctx context.Context, to []string, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := fmt.Sprintf("From: %s\r\nSubject: %s\r\n\r\n%s", m.from, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, to, []byte(msg))
}

// BatchSender chunks recipient lists per the provider's per-call recipient
// limit and paces calls with a requests-per-second ceiling.
type BatchSender struct {
	mailer    Mailer
	batchSize int
	limiter   *rate.Limiter
}

func NewBatchSender(m Mailer, batchSize, perSecond int) *BatchSender {
	return &BatchSender{
		mailer:    m,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// SendBatch delivers to all recipients in chunks. The first failed chunk
// aborts and returns the recipients that were not confirmed sent so the
// caller can queue them.
func (b *BatchSender) SendBatch(ctx context.Context, recipients []string, subject, body string) (unsent []string, err error) {
	for start := 0; start < len(recipients); start += b.batchSize {
		end := min(start+b.batchSize, len(recipients))
		if err := b.limiter.Wait(ctx); err != nil {
			return recipients[start:], err
		}
		if err := b.mailer.SendEmail(ctx, recipients[start:end], subject, body); err != nil {
			return recipients[start:], err
		}
	}
	return nil, nil
}
