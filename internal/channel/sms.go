package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"leadflow_backend/platform/config"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

// TwilioSender delivers SMS through the Twilio Messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	phones     PhoneFormatter
	http       *http.Client
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewTwilioSender returns nil when SMS is not configured.
func NewTwilioSender(cfg config.SMSConfig, phones PhoneFormatter) *TwilioSender {
	if !cfg.IsSMSEnabled() {
		return nil
	}
	return &TwilioSender{
		accountSID: cfg.GetTwilioAccountSID(),
		authToken:  cfg.GetTwilioAuthToken(),
		from:       cfg.GetTwilioFromNumber(),
		baseURL:    twilioBaseURL,
		phones:     phones,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TwilioSender) Send(ctx context.Context, msg Message) Result {
	to := msg.Recipient
	if t.phones != nil {
		to = t.phones.NormalizeE164(to)
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.from)
	form.Set("Body", msg.Content)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Failed("%v", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return Failed("twilio request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var out twilioResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed("twilio send failed: status %d: %s", resp.StatusCode, out.Message)
	}
	return Delivered(out.SID)
}
