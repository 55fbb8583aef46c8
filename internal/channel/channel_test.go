package channel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	res  Result
}

func (r *recordingSender) Send(_ context.Context, msg Message) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.res
}

func TestRouterSend(t *testing.T) {
	email := &recordingSender{res: Delivered("m-1")}
	r := NewRouter(nil)
	r.Register("email", email, 0, 0)
	if !r.Alias("form", "email") {
		t.Fatal("alias to registered channel failed")
	}
	if r.Alias("chat", "whatsapp") {
		t.Fatal("alias to unknown channel should fail")
	}

	res := r.Send(context.Background(), "FORM", "a@b.co", "hi", map[string]string{MetadataSubject: "Hello"})
	if !res.Success || res.ProviderMessageID != "m-1" {
		t.Fatalf("result = %+v", res)
	}
	if len(email.msgs) != 1 || email.msgs[0].Channel != "form" || email.msgs[0].Subject() != "Hello" {
		t.Fatalf("messages = %+v", email.msgs)
	}

	if res := r.Send(context.Background(), "sms", "+1", "hi", nil); res.Success || !strings.Contains(res.Error, "not configured") {
		t.Fatalf("unknown channel result = %+v", res)
	}
	if res := r.Send(context.Background(), "email", "  ", "hi", nil); res.Success || res.Error != "missing recipient" {
		t.Fatalf("missing recipient result = %+v", res)
	}

	if got := r.Channels(); strings.Join(got, ",") != "email,form" {
		t.Fatalf("channels = %v", got)
	}
}

func TestRouterFillsMissingError(t *testing.T) {
	r := NewRouter(nil)
	r.Register("email", &recordingSender{}, 0, 0)
	if res := r.Send(context.Background(), "email", "a@b.co", "x", nil); res.Success || res.Error == "" {
		t.Fatalf("result = %+v", res)
	}
}

func TestRouterRateLimitHonoursContext(t *testing.T) {
	r := NewRouter(nil)
	r.Register("sms", &recordingSender{res: Delivered("x")}, rate.Every(time.Hour), 1)

	if res := r.Send(context.Background(), "sms", "+1", "a", nil); !res.Success {
		t.Fatalf("first send = %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := r.Send(ctx, "sms", "+1", "b", nil)
	if res.Success || !strings.Contains(res.Error, "rate limit") {
		t.Fatalf("throttled send = %+v", res)
	}
}

func TestMessageSubject(t *testing.T) {
	tests := []struct {
		meta map[string]string
		want string
	}{
		{nil, "Follow-up"},
		{map[string]string{MetadataSequenceType: "nurture"}, "Follow-up: nurture"},
		{map[string]string{MetadataSubject: "Hi", MetadataSequenceType: "nurture"}, "Hi"},
	}
	for _, tt := range tests {
		if got := (Message{Metadata: tt.meta}).Subject(); got != tt.want {
			t.Errorf("Subject(%v) = %q, want %q", tt.meta, got, tt.want)
		}
	}
}

func TestRenderFollowUpEscapes(t *testing.T) {
	html, err := renderFollowUp("Hi", "first <b>para</b>\n\nsecond", "Lead Desk")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<p>first &lt;b&gt;para&lt;/b&gt;</p>") || !strings.Contains(html, "<p>second</p>") {
		t.Fatalf("html = %s", html)
	}
}

func TestBrevoSender(t *testing.T) {
	var got brevoEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<abc@brevo>"}`))
	}))
	defer srv.Close()

	b := &BrevoSender{apiKey: "key", fromName: "Desk", fromEmail: "desk@x.io", endpoint: srv.URL, client: srv.Client()}
	res := b.Send(context.Background(), Message{Recipient: "lead@x.io", Content: "Hello", Metadata: map[string]string{MetadataSequenceType: "reminder"}})
	if !res.Success || res.ProviderMessageID != "<abc@brevo>" {
		t.Fatalf("result = %+v", res)
	}
	if got.Subject != "Follow-up: reminder" || got.To[0].Email != "lead@x.io" || got.TextContent != "Hello" {
		t.Fatalf("payload = %+v", got)
	}

	b.apiKey = "wrong"
	if res := b.Send(context.Background(), Message{Recipient: "lead@x.io", Content: "Hello"}); res.Success || !strings.Contains(res.Error, "401") {
		t.Fatalf("unauthorized result = %+v", res)
	}
}

type plusOne struct{}

func (plusOne) NormalizeE164(input string) string { return "+1" + strings.TrimLeft(input, "+") }

func TestGowaSender(t *testing.T) {
	var (
		body   gowaRequest
		header http.Header
		path   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Clone()
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"code":"SUCCESS","results":{"message_id":"wa-9"}}`))
	}))
	defer srv.Close()

	g := &GowaSender{baseURL: srv.URL, apiKey: "user:pass", deviceID: "dev-1", phones: plusOne{}, http: srv.Client()}
	res := g.Send(context.Background(), Message{Channel: "whatsapp", Recipient: "6502530000", Content: "Hi"})
	if !res.Success || res.ProviderMessageID != "wa-9" {
		t.Fatalf("result = %+v", res)
	}
	if path != "/send/message" || body.Phone != "16502530000" || body.Message != "Hi" {
		t.Fatalf("path=%s body=%+v", path, body)
	}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass"))
	if header.Get("Authorization") != wantAuth || header.Get("X-Device-Id") != "dev-1" {
		t.Fatalf("headers = %v", header)
	}
}

func TestGowaSenderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "device offline", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := &GowaSender{baseURL: srv.URL, http: srv.Client()}
	res := g.Send(context.Background(), Message{Recipient: "+31612345678", Content: "Hi"})
	if res.Success || !strings.Contains(res.Error, "503") || !strings.Contains(res.Error, "device offline") {
		t.Fatalf("result = %+v", res)
	}
}

func TestFormatAuthHeader(t *testing.T) {
	if got := formatAuthHeader("Basic abc"); got != "Basic abc" {
		t.Fatalf("got %q", got)
	}
	if got := formatAuthHeader("a:b"); got != "Basic YTpi" {
		t.Fatalf("got %q", got)
	}
}

func TestTwilioSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "AC1" || pass != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":20003,"message":"Authenticate"}`))
			return
		}
		if r.URL.Path != "/Accounts/AC1/Messages.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("To") != "+16502530000" || r.PostForm.Get("From") != "+15550000000" || r.PostForm.Get("Body") != "Hi" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":21211,"message":"bad params"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	s := &TwilioSender{accountSID: "AC1", authToken: "tok", from: "+15550000000", baseURL: srv.URL, phones: plusOne{}, http: srv.Client()}
	res := s.Send(context.Background(), Message{Recipient: "6502530000", Content: "Hi"})
	if !res.Success || res.ProviderMessageID != "SM123" {
		t.Fatalf("result = %+v", res)
	}

	s.authToken = "bad"
	res = s.Send(context.Background(), Message{Recipient: "6502530000", Content: "Hi"})
	if res.Success || !strings.Contains(res.Error, "Authenticate") {
		t.Fatalf("result = %+v", res)
	}
}

func TestNoopSenderSucceeds(t *testing.T) {
	res := NoopSender{channel: "email"}.Send(context.Background(), Message{Recipient: "a@b.co"})
	if !res.Success || !strings.HasPrefix(res.ProviderMessageID, "noop-") {
		t.Fatalf("result = %+v", res)
	}
}
