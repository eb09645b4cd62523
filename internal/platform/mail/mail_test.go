package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recophone/api/internal/platform/config"
)

func TestPlainText(t *testing.T) {
	html := `<p>Bonjour <strong>Élise</strong>,</p><p>Votre devis <a href="https://x">RP_00001</a> &amp; contrat.</p><script>alert(1)</script>`
	got := PlainText(html)
	assert.Equal(t, "Bonjour Élise,\nVotre devis RP_00001 & contrat.", got)
}

func TestLogSender_RequiresRecipients(t *testing.T) {
	s := NewLogSender(nil)
	assert.ErrorIs(t, s.Send(context.Background(), Message{Subject: "x"}), ErrNoRecipients)
	assert.NoError(t, s.Send(context.Background(), Message{To: []string{"a@b.be"}, Subject: "x"}))
}

func TestSMTPSender_BuildMessage(t *testing.T) {
	s, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, User: "shop@recophone.be", Password: "pw"})
	require.NoError(t, err)

	m, err := s.build(Message{
		To:      []string{"client@example.com"},
		ReplyTo: "hello@recophone.be",
		Subject: "Votre devis RecoPhone RP_00001",
		HTML:    "<p>Merci</p>",
		Attachments: []Attachment{
			{Name: "devis_RP_00001.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()
	assert.Contains(t, raw, "Subject: Votre devis RecoPhone RP_00001")
	assert.Contains(t, raw, "shop@recophone.be")
	assert.Contains(t, raw, "devis_RP_00001.pdf")
	assert.True(t, strings.Contains(raw, "text/html"))

	_, err = s.build(Message{Subject: "x"})
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestNewSMTPSender_RequiresHost(t *testing.T) {
	_, err := NewSMTPSender(config.SMTPConfig{})
	assert.Error(t, err)
}
