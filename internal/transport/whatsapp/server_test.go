package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	calls int
	last  string
}

func (h *echoHandler) Handle(_ context.Context, _, text string) string {
	h.calls++
	h.last = text
	if strings.TrimSpace(text) == "" {
		return "Пожалуйста, задайте вопрос для аналитики данных."
	}
	return "ответ: " + text
}

func newTestServer(t *testing.T, handler MessageHandler, authToken string) *Server {
	t.Helper()
	s, err := NewServer(Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Handler:   handler,
		Addr:      "127.0.0.1:0",
		AuthToken: authToken,
	})
	require.NoError(t, err)
	return s
}

func postForm(t *testing.T, s *Server, form url.Values, sign string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
		strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sign != "" {
		req.Header.Set("X-Twilio-Signature", sign)
	}
	rec := httptest.NewRecorder()
	s.handleWebhook(rec, req)
	return rec
}

func TestWebhook_RepliesWithTwiML(t *testing.T) {
	t.Parallel()

	h := &echoHandler{}
	s := newTestServer(t, h, "")

	form := url.Values{
		"MessageSid": {"SM001"},
		"From":       {"whatsapp:+79990000001"},
		"Body":       {"сколько пользователей?"},
	}
	rec := postForm(t, s, form, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<Response>")
	assert.Contains(t, rec.Body.String(), "<Message>ответ: сколько пользователей?</Message>")
	assert.Equal(t, 1, h.calls)
}

func TestWebhook_DeduplicatesBySID(t *testing.T) {
	t.Parallel()

	h := &echoHandler{}
	s := newTestServer(t, h, "")

	form := url.Values{
		"MessageSid": {"SM002"},
		"From":       {"whatsapp:+79990000001"},
		"Body":       {"вопрос"},
	}
	first := postForm(t, s, form, "")
	second := postForm(t, s, form, "")

	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 1, h.calls, "retried delivery must not run the pipeline again")
	assert.NotContains(t, second.Body.String(), "<Message>")
}

func TestWebhook_RejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	h := &echoHandler{}
	s := newTestServer(t, h, "secret-token")

	form := url.Values{
		"MessageSid": {"SM003"},
		"From":       {"whatsapp:+79990000001"},
		"Body":       {"вопрос"},
	}
	rec := postForm(t, s, form, "not-a-real-signature")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, h.calls)
}

func TestWebhook_AcceptsValidSignature(t *testing.T) {
	t.Parallel()

	h := &echoHandler{}
	s := newTestServer(t, h, "secret-token")

	form := url.Values{
		"MessageSid": {"SM004"},
		"From":       {"whatsapp:+79990000001"},
		"Body":       {"вопрос"},
	}
	requestURL := "http://example.com/webhook/whatsapp"
	rec := postForm(t, s, form, signForm("secret-token", requestURL, form))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.calls)
}

func TestTestQueryEndpoint(t *testing.T) {
	t.Parallel()

	h := &echoHandler{}
	s := newTestServer(t, h, "")

	req := httptest.NewRequest(http.MethodPost, "/test/query",
		strings.NewReader(`{"question": "какая выручка?"}`))
	rec := httptest.NewRecorder()
	s.handleTestQuery(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer": "ответ: какая выручка?"}`, rec.Body.String())
}

func TestRenderTwiML_Empty(t *testing.T) {
	t.Parallel()

	body, err := renderTwiML()
	require.NoError(t, err)
	assert.Contains(t, string(body), "<Response>")
	assert.NotContains(t, string(body), "<Message>")
}

// signForm mirrors Twilio's signing scheme: HMAC-SHA1 over the URL plus the
// form parameters sorted by name.
func signForm(authToken, requestURL string, form url.Values) string {
	names := make([]string, 0, len(form))
	for name := range form {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := requestURL
	for _, name := range names {
		payload += name + form.Get(name)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
