package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const textPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"contacts": [{"profile": {"name": "Ana"}, "wa_id": "555123"}],
				"messages": [{
					"from": "555123",
					"id": "wamid.1",
					"timestamp": "1700000000",
					"type": "text",
					"text": {"body": "  hola  "}
				}]
			}
		}]
	}]
}`

const statusPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "123",
		"changes": [{
			"field": "messages",
			"value": {
				"messaging_product": "whatsapp",
				"statuses": [{"id": "wamid.1", "status": "delivered"}]
			}
		}]
	}]
}`

// inboundCollector gathers async webhook dispatches for assertions.
type inboundCollector struct {
	mu   sync.Mutex
	msgs []Inbound
}

func (c *inboundCollector) handle(msg Inbound) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *inboundCollector) wait(t *testing.T, n int) []Inbound {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.msgs)
		c.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.msgs, n)
	return append([]Inbound(nil), c.msgs...)
}

func TestHandleVerify(t *testing.T) {
	h := NewWebhookHandler("secret-token", "", nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=challenge-42", nil)
	h.HandleVerify(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "challenge-42", rec.Body.String())

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=x", nil)
	h.HandleVerify(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleIncoming_TextMessage(t *testing.T) {
	collector := &inboundCollector{}
	h := NewWebhookHandler("tok", "", collector.handle)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	h.HandleIncoming(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EVENT_RECEIVED", rec.Body.String())

	msgs := collector.wait(t, 1)
	assert.Equal(t, "555123", msgs[0].From)
	assert.Equal(t, "Ana", msgs[0].Name)
	assert.Equal(t, "text", msgs[0].Type)
	assert.Equal(t, "hola", msgs[0].Body)
	assert.Equal(t, "wamid.1", msgs[0].ID)
	assert.NotEmpty(t, msgs[0].EventID)
}

func TestHandleIncoming_StatusUpdateIgnored(t *testing.T) {
	collector := &inboundCollector{}
	h := NewWebhookHandler("tok", "", collector.handle)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(statusPayload))
	h.HandleIncoming(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	time.Sleep(20 * time.Millisecond)
	collector.mu.Lock()
	defer collector.mu.Unlock()
	assert.Empty(t, collector.msgs)
}

func TestHandleIncoming_SignatureChecked(t *testing.T) {
	const secret = "app-secret"
	collector := &inboundCollector{}
	h := NewWebhookHandler("tok", secret, collector.handle)

	// Missing signature is rejected.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	h.HandleIncoming(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Valid signature is accepted.
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(textPayload))
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	req.Header.Set("X-Hub-Signature-256", sig)
	h.HandleIncoming(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	collector.wait(t, 1)
}

func TestParseMessages_AudioMessage(t *testing.T) {
	h := NewWebhookHandler("tok", "", nil)

	payload := WebhookPayload{Entry: []Entry{{Changes: []Change{{Value: ChangeValue{
		Contacts: []Contact{{Profile: Profile{Name: "Ana"}}},
		Messages: []Message{{
			From:  "555123",
			ID:    "wamid.2",
			Type:  "audio",
			Audio: &AudioContent{ID: "media-9", MimeType: "audio/ogg"},
		}},
	}}}}}}

	msgs := h.parseMessages(payload)
	require.Len(t, msgs, 1)
	assert.Equal(t, "audio", msgs[0].Type)
	assert.Equal(t, "media-9", msgs[0].MediaID)
	assert.Empty(t, msgs[0].Body)
}
