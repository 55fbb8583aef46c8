package channel

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	gomail "github.com/wneessen/go-mail"
)

//go:embed templates/*.html
var templateFS embed.FS

var followUpTemplate = template.Must(template.ParseFS(templateFS, "templates/follow_up.html"))

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type followUpEmailData struct {
	Subject    string
	Paragraphs []string
	FromName   string
}

func renderFollowUp(subject, content, fromName string) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	var buf bytes.Buffer
	if err := followUpTemplate.Execute(&buf, followUpEmailData{Subject: subject, Paragraphs: paragraphs, FromName: fromName}); err != nil {
		return "", fmt.Errorf("render follow-up email: %w", err)
	}
	return buf.String(), nil
}

// NewEmailSender picks Brevo when an API key is set, SMTP when a host is
// set and a no-op sender when email is disabled.
func NewEmailSender(cfg config.EmailConfig, log *logger.Logger) Sender {
	switch {
	case !cfg.GetEmailEnabled():
		return NoopSender{log: log, channel: "email"}
	case cfg.GetBrevoAPIKey() != "":
		return &BrevoSender{
			apiKey:    cfg.GetBrevoAPIKey(),
			fromName:  cfg.GetEmailFromName(),
			fromEmail: cfg.GetEmailFromAddress(),
			endpoint:  brevoEndpoint,
			client:    &http.Client{Timeout: 10 * time.Second},
		}
	default:
		return &SMTPSender{
			host:      cfg.GetSMTPHost(),
			port:      cfg.GetSMTPPort(),
			username:  cfg.GetSMTPUsername(),
			password:  cfg.GetSMTPPassword(),
			fromName:  cfg.GetEmailFromName(),
			fromEmail: cfg.GetEmailFromAddress(),
		}
	}
}

// NoopSender accepts every message without delivering it.
type NoopSender struct {
	log     *logger.Logger
	channel string
}

func (n NoopSender) Send(_ context.Context, msg Message) Result {
	if n.log != nil {
		n.log.Info("channel disabled, message dropped", "channel", n.channel, "recipient", msg.Recipient)
	}
	return Delivered("noop-" + uuid.NewString())
}

// BrevoSender sends email through the Brevo transactional API.
type BrevoSender struct {
	apiKey    string
	fromName  string
	fromEmail string
	endpoint  string
	client    *http.Client
}

type brevoEmailRequest struct {
	Sender struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"sender"`
	To []struct {
		Email string `json:"email"`
	} `json:"to"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"htmlContent"`
	TextContent string `json:"textContent"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

func (b *BrevoSender) Send(ctx context.Context, msg Message) Result {
	subject := msg.Subject()
	html, err := renderFollowUp(subject, msg.Content, b.fromName)
	if err != nil {
		return Failed("%v", err)
	}

	payload := brevoEmailRequest{Subject: subject, HTMLContent: html, TextContent: msg.Content}
	payload.Sender.Name = b.fromName
	payload.Sender.Email = b.fromEmail
	payload.To = []struct {
		Email string `json:"email"`
	}{{Email: msg.Recipient}}

	body, err := json.Marshal(payload)
	if err != nil {
		return Failed("marshal brevo payload: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return Failed("%v", err)
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return Failed("brevo request failed: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Failed("brevo send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out brevoEmailResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return Delivered(out.MessageID)
}

// SMTPSender sends email over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	subject := msg.Subject()
	html, err := renderFollowUp(subject, msg.Content, s.fromName)
	if err != nil {
		return Failed("%v", err)
	}

	m := gomail.NewMsg()
	if err := m.FromFormat(s.fromName, s.fromEmail); err != nil {
		return Failed("smtp from: %v", err)
	}
	if err := m.To(msg.Recipient); err != nil {
		return Failed("smtp to: %v", err)
	}
	m.Subject(subject)
	m.SetMessageID()
	m.SetBodyString(gomail.TypeTextPlain, msg.Content)
	m.AddAlternativeString(gomail.TypeTextHTML, html)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return Failed("smtp client: %v", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return Failed("smtp send: %v", err)
	}
	return Delivered(m.GetMessageID())
}
