package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	PaymentSignatureHeader  = "Stripe-Signature"
	TrackingSignatureHeader = "X-Tracking-Signature"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Authenticator checks a webhook signature before the body is trusted.
// Without a secret every request passes and a warning is logged each time.
type Authenticator struct {
	source string
	secret []byte
	verify func(secret, body []byte, header string) error
	log    *zap.Logger
}

// NewPaymentAuthenticator verifies "t=<unix>,v1=<hex>" headers where v1 is
// HMAC-SHA256 over "<t>.<body>", rejecting timestamps outside tolerance.
func NewPaymentAuthenticator(secret string, tolerance time.Duration, logger *zap.Logger) *Authenticator {
	return newAuthenticator("payment", secret, func(secret, body []byte, header string) error {
		return verifyTimestamped(secret, body, header, tolerance, time.Now())
	}, logger)
}

// NewTrackingAuthenticator verifies a hex HMAC-SHA256 of the raw body,
// optionally prefixed with "sha256=".
func NewTrackingAuthenticator(secret string, logger *zap.Logger) *Authenticator {
	return newAuthenticator("tracking", secret, verifyBody, logger)
}

func newAuthenticator(source, secret string, verify func([]byte, []byte, string) error, logger *zap.Logger) *Authenticator {
	a := &Authenticator{
		source: source,
		secret: []byte(secret),
		verify: verify,
		log:    logger.With(zap.String("component", "webhook-auth"), zap.String("source", source)),
	}
	if secret == "" {
		a.log.Error("Webhook signature verification DISABLED: no secret configured, every request will be accepted")
	}
	return a
}

func (a *Authenticator) Enabled() bool { return len(a.secret) > 0 }

func (a *Authenticator) Authenticate(body []byte, header string) error {
	if !a.Enabled() {
		a.log.Warn("Accepting unsigned webhook, verification disabled")
		return nil
	}
	if err := a.verify(a.secret, body, header); err != nil {
		a.log.Warn("Rejected webhook signature", zap.Bool("security", true), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func verifyTimestamped(secret, body []byte, header string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return errors.New("missing signature header")
	}
	var (
		ts   string
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return errors.New("malformed signature header")
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("bad timestamp %q", ts)
	}
	if tolerance > 0 {
		if age := now.Sub(time.Unix(unix, 0)); age > tolerance || age < -tolerance {
			return fmt.Errorf("timestamp outside tolerance (%s)", age.Round(time.Second))
		}
	}
	want := mac(secret, []byte(ts+"."), body)
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err == nil && hmac.Equal(got, want) {
			return nil
		}
	}
	return errors.New("no matching signature")
}

func verifyBody(secret, body []byte, header string) error {
	header = strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if header == "" {
		return errors.New("missing signature header")
	}
	got, err := hex.DecodeString(header)
	if err != nil {
		return errors.New("signature is not hex")
	}
	if !hmac.Equal(got, mac(secret, body)) {
		return errors.New("no matching signature")
	}
	return nil
}

func mac(secret []byte, parts ...[]byte) []byte {
	h := hmac.New(sha256.New, secret)
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// SignPayment builds a payment signature header for body at ts.
func SignPayment(secret string, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(mac([]byte(secret), []byte(t+"."), body))
}

// SignTracking builds a tracking signature header for body.
func SignTracking(secret string, body []byte) string {
	return hex.EncodeToString(mac([]byte(secret), body))
}
