package mailer

import (
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/migro/internal/common"
	"github.com/ternarybob/migro/internal/models"
)

func enabledConfig() *common.MailerConfig {
	return &common.MailerConfig{
		Enabled: true,
		Host:    "smtp.example",
		Port:    587,
		From:    "migro@example.com",
		To:      "ops@example.com",
	}
}

func TestNotifyDisabledIsNoop(t *testing.T) {
	svc := NewService(&common.MailerConfig{}, arbor.NewLogger())
	svc.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Error("send called while disabled")
		return nil
	}

	job := &models.ImportJob{ID: "job-m1", Origin: "https://shop.example"}
	require.NoError(t, svc.NotifyJobFinished(job, nil))
}

func TestNotifySendsMessage(t *testing.T) {
	svc := NewService(enabledConfig(), arbor.NewLogger())

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	job := &models.ImportJob{
		ID:        "job-m2",
		Origin:    "https://shop.example",
		Status:    models.JobStatusCompleted,
		Phase:     models.PhaseDone,
		PageCount: 12,
	}
	require.NoError(t, svc.NotifyJobFinished(job, nil))

	assert.Equal(t, "smtp.example:587", gotAddr)
	assert.Equal(t, "migro@example.com", gotFrom)
	assert.Equal(t, []string{"ops@example.com"}, gotTo)

	text := string(gotMsg)
	assert.Contains(t, text, "Subject: Import completed: https://shop.example")
	assert.Contains(t, text, "To: <ops@example.com>")
	assert.Contains(t, text, "text/plain")
}

func TestNotifyAttachesReport(t *testing.T) {
	svc := NewService(enabledConfig(), arbor.NewLogger())

	var gotMsg []byte
	svc.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	job := &models.ImportJob{ID: "job-m3", Origin: "https://shop.example", Status: models.JobStatusCompleted}
	require.NoError(t, svc.NotifyJobFinished(job, []byte("%PDF-1.7 fake")))

	text := string(gotMsg)
	assert.Contains(t, text, "application/pdf")
	assert.Contains(t, text, "import-report.pdf")
	assert.True(t, strings.Contains(text, "attachment"))
}

func TestNotificationBodyIncludesError(t *testing.T) {
	job := &models.ImportJob{
		ID:     "job-m4",
		Origin: "https://shop.example",
		Status: models.JobStatusFailed,
		Error:  "site root returned status 503",
	}
	body := notificationBody(job)
	assert.Contains(t, body, "site root returned status 503")
	assert.Contains(t, body, "failed")
}
