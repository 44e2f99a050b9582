package mailer

import (
	"bytes"
	"fmt"
	"io"
	"net/smtp"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/models"
)

// sendFunc matches smtp.SendMail, injectable for tests
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// Service emails an import-completion notification with the PDF report
// attached. Disabled unless explicitly configured; a failed send is
// logged and swallowed, it never affects the job outcome.
type Service struct {
	config *common.MailerConfig
	logger arbor.ILogger
	send   sendFunc
}

// NewService creates the notification mailer
func NewService(config *common.MailerConfig, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// Enabled reports whether notifications are configured
func (s *Service) Enabled() bool {
	return s.config.Enabled && s.config.Host != "" && s.config.From != "" && s.config.To != ""
}

// NotifyJobFinished sends the completion email for a terminal job,
// attaching the PDF report when one was generated
func (s *Service) NotifyJobFinished(job *models.ImportJob, report []byte) error {
	if !s.Enabled() {
		return nil
	}

	subject := fmt.Sprintf("Import %s: %s", job.Status, job.Origin)
	body := notificationBody(job)

	msg, err := buildMessage(s.config.From, s.config.To, subject, body, report)
	if err != nil {
		return fmt.Errorf("failed to build notification message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if err := s.send(addr, auth, s.config.From, []string{s.config.To}, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("to", s.config.To).
		Msg("Sent import notification")
	return nil
}

// buildMessage assembles the MIME message: a plain-text body plus an
// optional PDF report attachment
func buildMessage(from, to, subject, body string, report []byte) ([]byte, error) {
	var buf bytes.Buffer

	var header mail.Header
	header.SetDate(time.Now())
	header.SetAddressList("From", []*mail.Address{{Address: from}})
	header.SetAddressList("To", []*mail.Address{{Address: to}})
	header.SetSubject(subject)

	writer, err := mail.CreateWriter(&buf, header)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	inline, err := writer.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create body part: %w", err)
	}
	var textHeader mail.InlineHeader
	textHeader.Set("Content-Type", "text/plain; charset=utf-8")
	textPart, err := inline.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(textPart, body); err != nil {
		return nil, fmt.Errorf("failed to write body: %w", err)
	}
	textPart.Close()
	inline.Close()

	if len(report) > 0 {
		var attHeader mail.AttachmentHeader
		attHeader.Set("Content-Type", "application/pdf")
		attHeader.SetFilename("import-report.pdf")
		att, err := writer.CreateAttachment(attHeader)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment: %w", err)
		}
		if _, err := att.Write(report); err != nil {
			return nil, fmt.Errorf("failed to write attachment: %w", err)
		}
		att.Close()
	}

	writer.Close()
	return buf.Bytes(), nil
}

func notificationBody(job *models.ImportJob) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Import of %s finished with status %s.\n\n", job.Origin, job.Status)
	fmt.Fprintf(&buf, "Job:     %s\n", job.ID)
	fmt.Fprintf(&buf, "Phase:   %s\n", job.Phase)
	fmt.Fprintf(&buf, "Pages:   %d\n", job.PageCount)
	if job.Error != "" {
		fmt.Fprintf(&buf, "Error:   %s\n", job.Error)
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		fmt.Fprintf(&buf, "Elapsed: %s\n", job.CompletedAt.Sub(*job.StartedAt).Round(time.Second))
	}
	return buf.String()
}
