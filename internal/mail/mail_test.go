package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPSender_Send(t *testing.T) {
	s := NewSMTPSender("smtp.example.com:587", "gate@example.com", "user", "pw")
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte
	var gotAuth smtp.Auth
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotBody = addr, a, from, to, msg
		return nil
	}

	err := s.Send(context.Background(), Message{To: "alice@example.com", Subject: "Vérifiez", Text: "hello", HTML: "<p>hello</p>"})
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, "gate@example.com", gotFrom)
	assert.Equal(t, []string{"alice@example.com"}, gotTo)
	body := string(gotBody)
	assert.Contains(t, body, "To: alice@example.com\r\n")
	assert.Contains(t, body, "Subject: =?utf-8?q?")
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "<p>hello</p>")
}

func TestSMTPSender_PlainTextWithoutAuth(t *testing.T) {
	s := NewSMTPSender("localhost:25", "gate@example.com", "", "")
	var gotAuth smtp.Auth = smtp.PlainAuth("", "x", "y", "z")
	var body string
	s.send = func(_ string, a smtp.Auth, _ string, _ []string, msg []byte) error {
		gotAuth, body = a, string(msg)
		return nil
	}
	require.NoError(t, s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", Text: "plain"}))
	assert.Nil(t, gotAuth)
	assert.Contains(t, body, "Content-Type: text/plain")
	assert.NotContains(t, body, "multipart")
}

func TestSMTPSender_Errors(t *testing.T) {
	s := NewSMTPSender("localhost:25", "gate@example.com", "", "")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay denied") }

	assert.ErrorIs(t, s.Send(context.Background(), Message{}), ErrNoRecipient)

	err := s.Send(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay denied")

	block := make(chan struct{})
	defer close(block)
	s.send = func(string, smtp.Auth, string, []string, []byte) error { <-block; return nil }
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Send(ctx, Message{To: "a@example.com"}), context.Canceled)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Message{To: "a@example.com", Subject: "s"}))
	assert.ErrorIs(t, LogSender{}.Send(context.Background(), Message{}), ErrNoRecipient)
}
