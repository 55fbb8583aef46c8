package channel

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// PhoneFormatter normalizes phone numbers to E.164.
type PhoneFormatter interface {
	NormalizeE164(input string) string
}

// GowaSender delivers WhatsApp and chat messages through a gowa gateway.
type GowaSender struct {
	baseURL  string
	apiKey   string
	deviceID string
	phones   PhoneFormatter
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Results struct {
		MessageID string `json:"message_id"`
	} `json:"results"`
}

// NewGowaSender returns nil when no gateway URL is configured.
func NewGowaSender(cfg config.WhatsAppConfig, phones PhoneFormatter, log *logger.Logger) *GowaSender {
	if cfg.GetWhatsAppURL() == "" {
		return nil
	}

	return &GowaSender{
		baseURL:  strings.TrimRight(cfg.GetWhatsAppURL(), "/"),
		apiKey:   cfg.GetWhatsAppKey(),
		deviceID: cfg.GetWhatsAppDeviceID(),
		phones:   phones,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
	}
}

func (g *GowaSender) Send(ctx context.Context, msg Message) Result {
	recipient := msg.Recipient
	if g.phones != nil {
		recipient = g.phones.NormalizeE164(recipient)
	}
	recipient = strings.TrimPrefix(recipient, "+")

	body, err := json.Marshal(gowaRequest{Phone: recipient, Message: msg.Content})
	if err != nil {
		return Failed("marshal whatsapp payload: %v", err)
	}

	url := fmt.Sprintf("%s/send/message", g.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Failed("%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(g.apiKey))
	}
	if g.deviceID != "" {
		req.Header.Set("X-Device-Id", g.deviceID)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return Failed("whatsapp request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Failed("whatsapp service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out gowaResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if g.log != nil {
		g.log.Info("whatsapp sent via gowa", "channel", msg.Channel, "phone", recipient)
	}
	return Delivered(out.Results.MessageID)
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
