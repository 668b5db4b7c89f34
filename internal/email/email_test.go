package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"growth_backend/internal/channels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
)

func TestRenderHTMLEscapesAndSplitsParagraphs(t *testing.T) {
	html, err := renderHTML("Hello", "Ada", "First line.\n\n<b>second</b>", "Growth")
	require.NoError(t, err)

	assert.Contains(t, html, "<title>Hello</title>")
	assert.Contains(t, html, "Hi Ada,")
	assert.Contains(t, html, "First line.")
	assert.Contains(t, html, "&lt;b&gt;second&lt;/b&gt;")
	assert.NotContains(t, html, "<b>second</b>")
}

func TestBrevoSenderPostsMessage(t *testing.T) {
	var got brevoEmailRequest
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewBrevoSender(srv.URL, "secret", "hello@growth.test", "Growth")
	err := sender.Send(context.Background(), channels.Message{
		Channel: channels.Email,
		To:      "ada@example.com",
		Name:    "Ada",
		Subject: "Welcome",
		Body:    "Thanks for stopping by.",
	})
	require.NoError(t, err)

	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "hello@growth.test", got.Sender.Email)
	require.Len(t, got.To, 1)
	assert.Equal(t, "ada@example.com", got.To[0].Email)
	assert.Equal(t, "Welcome", got.Subject)
	assert.Equal(t, "Thanks for stopping by.", got.TextContent)
	assert.Contains(t, got.HTMLContent, "Thanks for stopping by.")
}

func TestBrevoSenderReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid_parameter"}`))
	}))
	defer srv.Close()

	sender := NewBrevoSender(srv.URL, "secret", "hello@growth.test", "Growth")
	err := sender.Send(context.Background(), channels.Message{Channel: channels.Email, To: "ada@example.com", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "invalid_parameter")
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender("smtp.example.com", 587, "", "", "hello@growth.test", "Growth")
	m, err := s.buildMessage(channels.Message{To: "ada@example.com", Name: "Ada", Subject: "Hi", Body: "Body"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hi"}, m.GetGenHeader(gomail.HeaderSubject))

	_, err = s.buildMessage(channels.Message{To: "not an address", Body: "Body"})
	assert.Error(t, err)
}

type fakeConfig struct {
	enabled bool
	smtp    string
}

func (f fakeConfig) GetEmailEnabled() bool       { return f.enabled }
func (f fakeConfig) GetBrevoAPIKey() string      { return "key" }
func (f fakeConfig) GetEmailFromName() string    { return "Growth" }
func (f fakeConfig) GetEmailFromAddress() string { return "hello@growth.test" }
func (f fakeConfig) GetSMTPHost() string         { return f.smtp }
func (f fakeConfig) GetSMTPPort() int            { return 587 }
func (f fakeConfig) GetSMTPUsername() string     { return "" }
func (f fakeConfig) GetSMTPPassword() string     { return "" }
func (f fakeConfig) IsSMTPEnabled() bool         { return f.smtp != "" }

func TestNewSenderSelectsTransport(t *testing.T) {
	assert.Nil(t, NewSender(fakeConfig{}))
	assert.IsType(t, &BrevoSender{}, NewSender(fakeConfig{enabled: true}))
	assert.IsType(t, &SMTPSender{}, NewSender(fakeConfig{enabled: true, smtp: "smtp.example.com"}))
}
