package bot

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nidoux/keet/internal/ai"
	"github.com/nidoux/keet/internal/conversation"
	"github.com/nidoux/keet/internal/whatsapp"
)

const (
	rateLimitWindow = time.Minute
	rateLimitMax    = 10

	rateLimitReply = "You're sending messages too quickly. Give me a minute and try again."
	errorReply     = "There was a small technical hiccup on my side. Please try again in a moment."
	noAudioReply   = "I can't listen to voice notes yet. Could you type that instead?"
)

// Responder runs one model conversation to completion. Satisfied by *ai.Agent.
type Responder interface {
	ChatWithTools(ctx context.Context, messages []conversation.Message, opts ai.RunOptions) (conversation.Message, error)
}

// Sender is the outbound WhatsApp surface the handler needs.
// Satisfied by *whatsapp.Client.
type Sender interface {
	SendText(to, body string) error
	SendTypingIndicator(messageID string) error
	DownloadMedia(mediaID string) ([]byte, string, error)
}

// Transcriber converts voice-note bytes to text.
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte, mimeType string) (string, error)
}

type Handler struct {
	wa      Sender
	convo   *conversation.Manager
	agent   Responder
	stt     Transcriber // nil disables the audio branch
	limiter *rateLimiter
}

func NewHandler(wa Sender, convo *conversation.Manager, agent Responder, stt Transcriber) *Handler {
	return &Handler{
		wa:      wa,
		convo:   convo,
		agent:   agent,
		stt:     stt,
		limiter: newRateLimiter(rateLimitWindow, rateLimitMax),
	}
}

// HandleMessage processes one inbound event end to end: typing indicator,
// optional transcription, history fetch, the model run, reply delivery, and
// persistence of everything the run produced.
func (h *Handler) HandleMessage(msg whatsapp.Inbound) {
	ctx := context.Background()
	logger := log.With().Str("event_id", msg.EventID).Str("user", msg.From).Logger()

	// Best-effort; never blocks the reply.
	go func() {
		if err := h.wa.SendTypingIndicator(msg.ID); err != nil {
			logger.Debug().Err(err).Msg("typing indicator failed")
		}
	}()

	if !h.limiter.Allow(msg.From) {
		logger.Info().Msg("rate limited")
		h.reply(logger, msg.From, rateLimitReply)
		return
	}

	if msg.Type == "audio" {
		if h.stt == nil {
			h.reply(logger, msg.From, noAudioReply)
			return
		}
		transcript, err := h.transcribe(ctx, msg.MediaID)
		if err != nil {
			logger.Error().Err(err).Msg("voice note transcription failed")
			h.reply(logger, msg.From, errorReply)
			return
		}
		logger.Info().Str("transcript", transcript).Msg("voice note transcribed")
		msg.Body = transcript
	}

	if msg.Body == "" {
		return
	}

	userContent := msg.Name + ": " + msg.Body
	history, err := h.convo.FetchHistoryAndAppendUser(msg.From, userContent)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load conversation")
		h.reply(logger, msg.From, errorReply)
		return
	}

	messages := make([]conversation.Message, 0, len(history)+2)
	messages = append(messages, conversation.SystemMessage(ai.BuildSystemPrompt(msg.Name)))
	messages = append(messages, history...)
	messages = append(messages, conversation.UserMessage(userContent))

	p := newPersister(h.convo, msg.From, logger)
	final, err := h.agent.ChatWithTools(ctx, messages, ai.RunOptions{
		Persist: p.enqueue,
		OnChunk: func(m conversation.Message) {
			if text := strings.TrimSpace(m.Content); text != "" {
				h.reply(logger, msg.From, text)
			}
		},
	})
	p.close()

	if err != nil {
		logger.Error().Err(err).Msg("model run failed")
		h.reply(logger, msg.From, errorReply)
		return
	}

	// The final assistant message is appended here, not inside the run, so
	// the conversation only completes once the whole exchange is known.
	if err := h.convo.Append(msg.From, final); err != nil {
		logger.Error().Err(err).Msg("failed to persist final message")
	}
}

func (h *Handler) transcribe(ctx context.Context, mediaID string) (string, error) {
	data, mimeType, err := h.wa.DownloadMedia(mediaID)
	if err != nil {
		return "", err
	}
	return h.stt.Transcribe(ctx, data, mimeType)
}

func (h *Handler) reply(logger zerolog.Logger, to, body string) {
	if err := h.wa.SendText(to, body); err != nil {
		logger.Error().Err(err).Msg("failed to send reply")
	}
}
