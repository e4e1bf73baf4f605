package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureTolerance is how far a webhook timestamp may drift from now.
const SignatureTolerance = 5 * time.Minute

// Sign returns the signature header for body sent at ts.
func Sign(secret string, ts time.Time, body []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "ts=" + unix + ";h1=" + mac(secret, unix, body)
}

func mac(secret, ts string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte(":"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a "ts=<unix>;h1=<hex>" header against body. Several
// h1 values may be present during secret rotation; any match is accepted.
func VerifySignature(secret, header string, body []byte, now time.Time) error {
	const op = "VerifySignature"

	if secret == "" {
		return WrapBillingError(op, ErrNotConfigured, "webhook secret is not set")
	}
	if strings.TrimSpace(header) == "" {
		return WrapBillingError(op, ErrMissingSignature, "")
	}

	var ts string
	var hashes []string
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "h1":
			hashes = append(hashes, value)
		}
	}
	if ts == "" || len(hashes) == 0 {
		return WrapBillingError(op, ErrInvalidSignature, "malformed header")
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return WrapBillingError(op, ErrInvalidSignature, "bad timestamp")
	}
	drift := now.Sub(time.Unix(unix, 0))
	if drift > SignatureTolerance || drift < -SignatureTolerance {
		return WrapBillingError(op, ErrInvalidSignature, fmt.Sprintf("timestamp outside tolerance (%s)", drift.Round(time.Second)))
	}

	want := mac(secret, ts, body)
	for _, h := range hashes {
		if hmac.Equal([]byte(h), []byte(want)) {
			return nil
		}
	}
	return WrapBillingError(op, ErrInvalidSignature, "")
}
