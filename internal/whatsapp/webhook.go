package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Inbound is the canonical shape of one user message extracted from a
// webhook delivery. For audio messages Body is empty and MediaID carries
// the voice-note reference.
type Inbound struct {
	EventID string // correlation id assigned at parse time
	ID      string // WhatsApp message id
	From    string
	Name    string
	Type    string // "text" or "audio"
	Body    string
	MediaID string
}

// MessageHandler is called once per extracted inbound message, on its own
// goroutine.
type MessageHandler func(msg Inbound)

type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   MessageHandler
}

// NewWebhookHandler builds the webhook endpoints. appSecret enables
// X-Hub-Signature-256 verification of POST bodies; when empty, signature
// checks are skipped (local development only).
func NewWebhookHandler(verifyToken, appSecret string, onMessage MessageHandler) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
	}
}

// HandleVerify handles the GET webhook verification from Meta.
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/get-started#webhook-verification
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleIncoming processes incoming webhook POST notifications. The body is
// signature-checked, acknowledged immediately, and each contained user
// message is dispatched to the handler on its own goroutine.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warn().Err(err).Msg("webhook: failed to read body")
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.appSecret != "" && !h.validSignature(body, r.Header.Get("X-Hub-Signature-256")) {
		http.Error(w, "Bad signature", http.StatusForbidden)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Msg("webhook: failed to decode payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, msg := range h.parseMessages(payload) {
		go h.onMessage(msg)
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}

// validSignature checks the X-Hub-Signature-256 header against an HMAC of
// the raw body.
// Reference: https://developers.facebook.com/docs/graph-api/webhooks/getting-started#validating-payloads
func (h *WebhookHandler) validSignature(body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (h *WebhookHandler) parseMessages(payload WebhookPayload) []Inbound {
	var out []Inbound
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				log.Debug().Str("status", status.Status).Str("message_id", status.ID).Msg("webhook: status update")
			}

			name := "User"
			if len(change.Value.Contacts) > 0 && change.Value.Contacts[0].Profile.Name != "" {
				name = change.Value.Contacts[0].Profile.Name
			}

			for _, msg := range change.Value.Messages {
				inbound := Inbound{
					EventID: uuid.NewString(),
					ID:      msg.ID,
					From:    msg.From,
					Name:    name,
				}

				switch msg.Type {
				case "text":
					if msg.Text == nil {
						continue
					}
					inbound.Type = "text"
					inbound.Body = strings.TrimSpace(msg.Text.Body)
				case "audio":
					if msg.Audio == nil {
						continue
					}
					inbound.Type = "audio"
					inbound.MediaID = msg.Audio.ID
				case "interactive":
					if msg.Interactive == nil {
						continue
					}
					inbound.Type = "text"
					switch {
					case msg.Interactive.ButtonReply != nil:
						inbound.Body = msg.Interactive.ButtonReply.Title
					case msg.Interactive.ListReply != nil:
						inbound.Body = msg.Interactive.ListReply.Title
					default:
						continue
					}
				default:
					continue
				}

				out = append(out, inbound)
			}
		}
	}
	return out
}
