package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultAPIURL = "https://graph.facebook.com/v22.0"

type Client struct {
	apiURL        string
	phoneNumberID string
	accessToken   string
	http          *http.Client
}

func NewClient(phoneNumberID, accessToken string) *Client {
	return &Client{
		apiURL:        defaultAPIURL,
		phoneNumberID: phoneNumberID,
		accessToken:   accessToken,
		http:          &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) SendText(to, body string) error {
	msg := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &SendText{Body: body},
	}
	return c.post(fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID), msg)
}

// SendTypingIndicator marks the given inbound message as read and shows
// "typing..." in the user's chat. Callers treat this as best-effort.
func (c *Client) SendTypingIndicator(messageID string) error {
	req := TypingRequest{
		MessagingProduct: "whatsapp",
		Status:           "read",
		MessageID:        messageID,
		TypingIndicator:  TypingIndicator{Type: "text"},
	}
	return c.post(fmt.Sprintf("%s/%s/messages", c.apiURL, c.phoneNumberID), req)
}

// DownloadMedia resolves a media id to its short-lived URL and fetches the
// bytes. Returns the raw content and its mime type.
func (c *Client) DownloadMedia(mediaID string) ([]byte, string, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/%s", c.apiURL, mediaID), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("media lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("media lookup: status %d", resp.StatusCode)
	}

	var info MediaInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, "", fmt.Errorf("media lookup: decode: %w", err)
	}

	dlReq, err := http.NewRequest(http.MethodGet, info.URL, nil)
	if err != nil {
		return nil, "", err
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	dlResp, err := c.http.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("media download: %w", err)
	}
	defer dlResp.Body.Close()

	if dlResp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("media download: status %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("media download: %w", err)
	}
	return data, info.MimeType, nil
}

func (c *Client) post(url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp API status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}
