package push

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"tandem/internal/domain"
)

// VAPID holds the application server credentials.
type VAPID struct {
	Subject    string
	PublicKey  string
	PrivateKey string
	TTL        int
	Timeout    time.Duration
}

// WebPushSender delivers encrypted payloads through the Web Push protocol.
type WebPushSender struct {
	vapid  VAPID
	client *http.Client
}

// NewWebPushSender returns nil when either VAPID key is missing, which
// leaves the dispatcher disabled.
func NewWebPushSender(v VAPID) *WebPushSender {
	if v.PublicKey == "" || v.PrivateKey == "" {
		return nil
	}
	if v.Timeout <= 0 {
		v.Timeout = defaultTimeout
	}
	if v.TTL <= 0 {
		v.TTL = 3600
	}
	return &WebPushSender{vapid: v, client: &http.Client{Timeout: v.Timeout}}
}

func (s *WebPushSender) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, &webpush.Options{
		HTTPClient: s.client,
		// the library adds the mailto: scheme itself
		Subscriber:      strings.TrimPrefix(s.vapid.Subject, "mailto:"),
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             s.vapid.TTL,
		Urgency:         webpush.UrgencyNormal,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// GenerateKeys creates a fresh VAPID key pair.
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}

func itoa(n int) string { return strconv.Itoa(n) }

// endpointHost keeps log lines free of the per-device token in the path.
func endpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Host
}
