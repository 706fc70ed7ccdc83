package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifyWebhookSignature checks an HMAC-SHA256 hex signature over the raw
// request body. The payload must be the exact bytes received; re-encoded JSON
// will not verify. Any failure during the computation yields false.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil || len(decodedSig) != sha256.Size {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// SignWebhookPayload returns the hex signature the gateway would send for
// payload.
func SignWebhookPayload(payload []byte, webhookSecret string) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
