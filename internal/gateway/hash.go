package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Signer computes the request hashes the gateway contract documents. Field
// order and encoding must match the contract bit-for-bit; a deviation shows
// up only as an INVALID_HASH rejection on the gateway side.
type Signer struct {
	merchantID    string
	serviceTypeID string
	apiKey        string
}

func NewSigner(merchantID, serviceTypeID, apiKey string) *Signer {
	return &Signer{
		merchantID:    merchantID,
		serviceTypeID: serviceTypeID,
		apiKey:        apiKey,
	}
}

// InitHash signs a payment initialization request:
// SHA-512(merchantId + serviceTypeId + orderId + amount + apiKey), hex.
func (s *Signer) InitHash(orderID, amount string) string {
	payload := s.merchantID + s.serviceTypeID + orderID + amount + s.apiKey
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// StatusHash signs a transaction status poll:
// SHA-512(merchantId + rrr + apiKey), hex.
func (s *Signer) StatusHash(rrr string) string {
	payload := s.merchantID + rrr + s.apiKey
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// SigningInputs describes the init hash inputs minus the secret, for
// diagnostic logging when the gateway rejects a hash.
func (s *Signer) SigningInputs(orderID, amount string) string {
	return fmt.Sprintf("merchantId=%s serviceTypeId=%s orderId=%s amount=%s", s.merchantID, s.serviceTypeID, orderID, amount)
}

// FormatAmount renders a minor-unit amount the way the gateway expects it
// in hash payloads and request bodies: major units with two decimals.
func FormatAmount(minorUnits int64) string {
	return fmt.Sprintf("%d.%02d", minorUnits/100, minorUnits%100)
}

// WebhookVerifier checks inbound callback signatures: hex HMAC-SHA-512 over
// the raw, unparsed request body with the shared secret.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// Verify recomputes the body signature and compares it against the header
// value in constant time.
func (v *WebhookVerifier) Verify(rawBody []byte, headerSignature string) bool {
	if len(v.secret) == 0 || headerSignature == "" {
		return false
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(headerSignature)) == 1
}

// Sign is the counterpart of Verify, used by tests and by tooling that
// replays webhooks against a local instance.
func (v *WebhookVerifier) Sign(rawBody []byte) string {
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(rawBody)
	return hex.EncodeToString(mac.Sum(nil))
}
