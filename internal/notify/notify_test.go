package notify

import (
	"context"
	stderrors "errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zachkp/stats-consult/internal/config"
	"github.com/Zachkp/stats-consult/internal/store"
)

var testSMTP = config.SMTP{
	Host: "smtp.example.com",
	Port: "587",
	User: "site@example.com",
	Pass: "secret",
	To:   "owner@example.com",
}

func TestNew_DisabledWithoutCredentials(t *testing.T) {
	n := New(config.SMTP{Host: "smtp.example.com", Port: "587"})
	assert.IsType(t, Nop{}, n)
	assert.NoError(t, n.ContactReceived(context.Background(), &store.Message{}))
}

func TestCompose(t *testing.T) {
	msg := string(Compose(testSMTP, &store.Message{
		Name:  "Mallory\r\nBcc: victim@example.com",
		Email: "mallory@example.com\nBcc: x@example.com",
		Body:  "line one\nline two",
	}))

	headers, body, ok := strings.Cut(msg, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, headers, "To: owner@example.com\r\n")
	assert.Contains(t, headers, "Subject: Consulting Inquiry: Mallory Bcc: victim@example.com\r\n")
	assert.NotContains(t, headers, "\r\nBcc:")
	assert.Contains(t, body, "line one\r\nline two")
}

func TestSMTP_ContactReceived(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	n := &SMTP{cfg: testSMTP, send: func(addr string, _ smtp.Auth, from string, to []string, _ []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}}

	require.NoError(t, n.ContactReceived(context.Background(), &store.Message{ID: "m1", Name: "Ada"}))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "site@example.com", gotFrom)
	assert.Equal(t, []string{"owner@example.com"}, gotTo)

	n.send = func(string, smtp.Auth, string, []string, []byte) error { return stderrors.New("connection refused") }
	assert.ErrorContains(t, n.ContactReceived(context.Background(), &store.Message{ID: "m2"}), "connection refused")
}
