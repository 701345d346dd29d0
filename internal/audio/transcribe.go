// Package audio converts WhatsApp voice notes to text via the ElevenLabs
// speech-to-text API. The audio bytes pass straight through; nothing is
// stored.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"
	sttModel        = "scribe_v1"
)

type Transcriber struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func NewTranscriber(apiKey string) *Transcriber {
	return &Transcriber{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe uploads the voice note and returns its transcript.
func (t *Transcriber) Transcribe(ctx context.Context, data []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", fileName(mimeType))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}

	form.WriteField("model_id", sttModel)
	form.WriteField("tag_audio_events", "false")
	form.WriteField("diarize", "false")

	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", t.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("speech-to-text: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("speech-to-text: status %d: %s", resp.StatusCode, respBody)
	}

	var tr transcriptionResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", fmt.Errorf("speech-to-text: unmarshal: %w", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

func fileName(mimeType string) string {
	ext := "bin"
	if _, sub, ok := strings.Cut(mimeType, "/"); ok {
		// WhatsApp reports e.g. "audio/ogg; codecs=opus".
		ext = strings.TrimSpace(strings.Split(sub, ";")[0])
	}
	return "voice_note." + ext
}
