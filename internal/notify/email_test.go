package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSendGridSenderRequiresAPIKey(t *testing.T) {
	assert.Nil(t, NewSendGridSender(SendGridConfig{FromEmail: "desk@smiledesk.example"}, nil))
}

func TestSendGridSenderRejectsIncompleteMessage(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "desk@smiledesk.example",
	}, nil)
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{Subject: "reminder"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient")
}

func TestStubEmailSenderAcceptsAnything(t *testing.T) {
	sender := NewStubEmailSender(nil)
	require.NoError(t, sender.Send(context.Background(), EmailMessage{
		To:      "ana@example.com",
		Subject: "opening",
		Body:    "a slot opened up",
	}))
}
