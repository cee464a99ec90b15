package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRecipients struct {
	emails []string
	err    error
}

func (s staticRecipients) SecurityManagerEmails(context.Context, string) ([]string, error) {
	return s.emails, s.err
}

type recordingMailer struct {
	to   []string
	sent []Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to []string, e Email) error {
	m.to = to
	m.sent = append(m.sent, e)
	return m.err
}

func TestFanout_Email(t *testing.T) {
	a := NewLogonAlert("org-1", "PC-1", "ACM2278", time.Date(2024, 1, 8, 23, 0, 0, 0, time.UTC), true)

	mailer := &recordingMailer{}
	f := NewFanout(NewHub(), staticRecipients{emails: []string{"sec@acme.com"}}, mailer, nil)
	require.NoError(t, f.Email(context.Background(), a))
	assert.Equal(t, []string{"sec@acme.com"}, mailer.to)
	require.Len(t, mailer.sent, 1)
	assert.Contains(t, mailer.sent[0].Subject, "(PC-1)")

	mailer = &recordingMailer{}
	f = NewFanout(NewHub(), staticRecipients{}, mailer, nil)
	assert.NoError(t, f.Email(context.Background(), a))
	assert.Empty(t, mailer.sent)

	f = NewFanout(NewHub(), staticRecipients{err: errors.New("db down")}, &recordingMailer{}, nil)
	assert.Error(t, f.Email(context.Background(), a))

	f = NewFanout(NewHub(), staticRecipients{emails: []string{"sec@acme.com"}}, &recordingMailer{err: errors.New("smtp 554")}, nil)
	assert.Error(t, f.Email(context.Background(), a))

	f = NewFanout(NewHub(), staticRecipients{}, nil, nil)
	assert.ErrorIs(t, f.Email(context.Background(), a), ErrMailerNotConfigured)
}

func TestFanout_Broadcast(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	hub.Subscribe("org-1", conn)
	f := NewFanout(hub, staticRecipients{}, nil, nil)

	a := NewLogonAlert("org-1", "PC-1", "ACM2278", time.Now(), true)
	assert.Equal(t, 1, f.Broadcast(context.Background(), a))
	require.Len(t, conn.written, 1)
	assert.Equal(t, a, conn.written[0])
}
