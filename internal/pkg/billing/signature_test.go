package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"event":"payment.captured","payload":{}}`)
	secret := "whsec-test"

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	validSig := hex.EncodeToString(mac.Sum(nil))

	assert.True(t, VerifyWebhookSignature(payload, validSig, secret))
	assert.True(t, VerifyWebhookSignature(payload, strings.ToUpper(validSig), secret))
	assert.True(t, VerifyWebhookSignature(payload, " "+validSig+" ", secret))
	assert.Equal(t, validSig, SignWebhookPayload(payload, secret))

	assert.False(t, VerifyWebhookSignature(payload, validSig, "other-secret"))
	assert.False(t, VerifyWebhookSignature(payload, "", secret))
	assert.False(t, VerifyWebhookSignature(payload, validSig, ""))
	assert.False(t, VerifyWebhookSignature(payload, "garbage", secret))
	assert.False(t, VerifyWebhookSignature(payload, "deadbeef", secret))
}

func TestVerifyWebhookSignature_SingleByteMutation(t *testing.T) {
	payload := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1"}}}}`)
	secret := "whsec-test"
	sig := SignWebhookPayload(payload, secret)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if VerifyWebhookSignature(mutated, sig, secret) {
			t.Fatalf("mutation at byte %d still verified", i)
		}
	}

	truncated := payload[:len(payload)-1]
	assert.False(t, VerifyWebhookSignature(truncated, sig, secret))
	assert.False(t, VerifyWebhookSignature(append(append([]byte(nil), payload...), ' '), sig, secret))
}

func TestVerifyWebhookSignature_Reserialized(t *testing.T) {
	raw := []byte("{\n  \"event\": \"payment.captured\"\n}")
	compact := []byte(`{"event":"payment.captured"}`)
	secret := "whsec-test"

	sig := SignWebhookPayload(raw, secret)
	assert.True(t, VerifyWebhookSignature(raw, sig, secret))
	assert.False(t, VerifyWebhookSignature(compact, sig, secret))
}
