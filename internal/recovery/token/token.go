// Package token builds and verifies the signed recovery link payload.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
)

// ErrInvalidSignature is returned when the recomputed HMAC does not match.
var ErrInvalidSignature = errors.New("recovery token signature mismatch")

// Payload is the signed content of a recovery link.
type Payload struct {
	OrderID   int64  `json:"order_id"`
	CartToken string `json:"cart_token"`
}

// Encode serializes the payload to canonical JSON, base64-encodes it, and
// signs the base64 string with HMAC-SHA256 under the given secret. The hash is
// hex-encoded.
func Encode(orderID int64, cartToken, secret string) (token, hash string, err error) {
	raw, err := json.Marshal(Payload{OrderID: orderID, CartToken: cartToken})
	if err != nil {
		return "", "", err
	}
	token = base64.StdEncoding.EncodeToString(raw)
	return token, sign(token, secret), nil
}

// Decode verifies the hash and returns the embedded payload. Verification
// recomputes the signature over the canonical re-encoding of the parsed
// payload, so insignificant JSON formatting differences cannot be used to
// forge a matching hash. Comparison is constant-time.
func Decode(tok, hash, secret string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(tok)
	if err != nil {
		return Payload{}, ErrInvalidSignature
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, ErrInvalidSignature
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return Payload{}, ErrInvalidSignature
	}
	expected := sign(base64.StdEncoding.EncodeToString(canonical), secret)

	if !hmac.Equal([]byte(expected), []byte(hash)) {
		return Payload{}, ErrInvalidSignature
	}
	return payload, nil
}

// RecoveryURL builds the checkout recovery link for a signed payload.
func RecoveryURL(siteURL, tok, hash string) string {
	return siteURL + "/recover?token=" + url.QueryEscape(tok) + "&hash=" + url.QueryEscape(hash)
}

func sign(data, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
