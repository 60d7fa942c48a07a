package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"moniqgw/pkg/logger"
	"moniqgw/pkg/utils"
)

// SignatureTolerance bounds the replay window of a signed notification.
const SignatureTolerance = 300 * time.Second

// Header names are compared after upper-casing, mapping '-' to '_' and
// dropping a CGI-style "HTTP_" prefix.
var signatureHeaders = []string{
	"X_MONIQ_SIGNATURE",
	"X_EVERYDAYMONEY_SIGNATURE",
}

type SignatureVerifier struct {
	secret string
	log    *logger.Logger
}

func NewSignatureVerifier(secret string, log *logger.Logger) *SignatureVerifier {
	return &SignatureVerifier{secret: secret, log: log}
}

// Verify authenticates body against the signature header. With no secret
// configured every notification is accepted.
func (v *SignatureVerifier) Verify(body []byte, headers http.Header, now time.Time) error {
	if v.secret == "" {
		v.log.Warning("Webhook secret not configured - skipping verification")
		return nil
	}

	header := signatureHeader(headers)
	if header == "" {
		return fmt.Errorf("%w: missing signature header", utils.ErrMalformedSignature)
	}

	fields := parseSignatureHeader(header)
	ts, sig := fields["t"], fields["v1"]
	if ts == "" || sig == "" {
		return fmt.Errorf("%w: t and v1 are required", utils.ErrMalformedSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", utils.ErrMalformedSignature, ts)
	}
	if skew := now.Sub(time.Unix(unix, 0)); skew > SignatureTolerance || skew < -SignatureTolerance {
		return utils.ErrExpiredSignature
	}

	expected := ComputeSignature(v.secret, ts, body)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return utils.ErrInvalidSignature
	}
	return nil
}

// HasSignature reports whether any recognised signature header is present.
func (v *SignatureVerifier) HasSignature(headers http.Header) bool {
	return signatureHeader(headers) != ""
}

// ComputeSignature returns the hex HMAC-SHA256 of "{timestamp}.{body}".
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue formats a header value the way the provider sends it.
func SignatureHeaderValue(secret string, at time.Time, body []byte) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return "t=" + ts + ",v1=" + ComputeSignature(secret, ts, body)
}

func normalizeHeaderName(name string) string {
	n := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(name)), "-", "_")
	return strings.TrimPrefix(n, "HTTP_")
}

func signatureHeader(headers http.Header) string {
	for _, want := range signatureHeaders {
		for name, values := range headers {
			if normalizeHeaderName(name) != want {
				continue
			}
			for _, val := range values {
				if val = strings.TrimSpace(val); val != "" {
					return val
				}
			}
		}
	}
	return ""
}

func parseSignatureHeader(header string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(k)] = strings.TrimSpace(val)
	}
	return fields
}
