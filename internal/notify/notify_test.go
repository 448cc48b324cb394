package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	messages []string
	err      error
}

func (r *recordingNotifier) Notify(_ context.Context, message string, _ []string) error {
	r.messages = append(r.messages, message)
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	bad1 := &recordingNotifier{err: errors.New("slack down")}
	bad2 := &recordingNotifier{err: errors.New("smtp down")}

	err := Multi{bad1, ok, bad2}.Notify(context.Background(), "hello", nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "slack down")
	assert.ErrorContains(t, err, "smtp down")
	assert.Equal(t, []string{"hello"}, ok.messages)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), "again", nil))
	assert.NoError(t, Multi{}.Notify(context.Background(), "none", nil))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), "PR opened", []string{"a@x", "b@x"}))
	assert.Contains(t, buf.String(), "PR opened")
	assert.Contains(t, buf.String(), "a@x,b@x")
}

func TestSplitRecipients(t *testing.T) {
	assert.Equal(t, []string{"a@x", "b@x"}, SplitRecipients(" a@x, ,b@x,"))
	assert.Nil(t, SplitRecipients(""))
}

func TestSlackWebhook(t *testing.T) {
	var mu sync.Mutex
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL + "/hook"})
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "Automated PR created", []string{"dev@x"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Automated PR created\ncc: dev@x", got["text"])
}

func TestSlackWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(SlackConfig{WebhookURL: srv.URL})
	require.NoError(t, err)
	assert.Error(t, n.Notify(context.Background(), "x", nil))
}

func TestSlackBot(t *testing.T) {
	var mu sync.Mutex
	var channels []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		mu.Lock()
		channels = append(channels, r.FormValue("channel"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"` + r.FormValue("channel") + `","ts":"1.0"}`))
	}))
	defer srv.Close()

	n, err := NewSlackNotifier(SlackConfig{BotToken: "xoxb-1", Channels: []string{"C1", "C2"}, APIURL: srv.URL + "/"})
	require.NoError(t, err)
	require.NoError(t, n.Notify(context.Background(), "hi", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"C1", "C2"}, channels)
}

func TestNewSlackNotifierValidation(t *testing.T) {
	_, err := NewSlackNotifier(SlackConfig{})
	assert.Error(t, err)
	_, err = NewSlackNotifier(SlackConfig{BotToken: "xoxb"})
	assert.Error(t, err)
}

func TestSMTPNotifier(t *testing.T) {
	n, err := NewSMTPNotifier(SMTPConfig{Addr: "mail.example:25", From: "fixbot@example"})
	require.NoError(t, err)
	n.now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }

	type sent struct {
		to  []string
		msg string
	}
	var mails []sent
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.example:25", addr)
		assert.Nil(t, a)
		assert.Equal(t, "fixbot@example", from)
		if to[0] == "bad@x" {
			return errors.New("550 mailbox unavailable")
		}
		mails = append(mails, sent{to, string(msg)})
		return nil
	}

	require.NoError(t, n.Notify(context.Background(), "line1\nline2", []string{"a@x"}))
	require.Len(t, mails, 1)
	assert.Equal(t, []string{"a@x"}, mails[0].to)
	assert.Contains(t, mails[0].msg, "Subject: fixbot notification\r\n")
	assert.Contains(t, mails[0].msg, "To: a@x\r\n")
	assert.True(t, strings.HasSuffix(mails[0].msg, "\r\n\r\nline1\r\nline2\r\n"))

	err = n.Notify(context.Background(), "x", []string{"bad@x", "b@x"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad@x")
	assert.Len(t, mails, 2)

	assert.Error(t, n.Notify(context.Background(), "x", nil))
}

func TestNewSMTPNotifierValidation(t *testing.T) {
	_, err := NewSMTPNotifier(SMTPConfig{From: "a@x"})
	assert.Error(t, err)
	_, err = NewSMTPNotifier(SMTPConfig{Addr: "nohost", From: "a@x"})
	assert.Error(t, err)
	_, err = NewSMTPNotifier(SMTPConfig{Addr: "h:25"})
	assert.Error(t, err)
}
