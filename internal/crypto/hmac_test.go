package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestL2HeadersAtDeterministic(t *testing.T) {
	auth := &HMACAuth{
		Key:        "api-key-1",
		Secret:     base64.StdEncoding.EncodeToString([]byte("super-secret")),
		Passphrase: "passphrase-1",
	}

	h1 := auth.L2HeadersAt("0xwallet", "POST", "/order", `{"size":10}`, 1700000000)
	h2 := auth.L2HeadersAt("0xwallet", "POST", "/order", `{"size":10}`, 1700000000)
	if h1["POLY_SIGNATURE"] != h2["POLY_SIGNATURE"] {
		t.Error("same inputs produced different signatures")
	}

	if h1["POLY_ADDRESS"] != "0xwallet" || h1["POLY_API_KEY"] != "api-key-1" ||
		h1["POLY_PASSPHRASE"] != "passphrase-1" || h1["POLY_TIMESTAMP"] != "1700000000" {
		t.Errorf("header fields wrong: %v", h1)
	}

	// Recompute the signature by hand.
	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte("1700000000POST/order" + `{"size":10}`))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if h1["POLY_SIGNATURE"] != want {
		t.Errorf("signature = %s, want %s", h1["POLY_SIGNATURE"], want)
	}
}

func TestL2HeadersSignatureVariesWithInput(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte("s"))}

	base := auth.L2HeadersAt("0xa", "GET", "/book", "", 1700000000)["POLY_SIGNATURE"]
	for name, sig := range map[string]string{
		"method":    auth.L2HeadersAt("0xa", "POST", "/book", "", 1700000000)["POLY_SIGNATURE"],
		"path":      auth.L2HeadersAt("0xa", "GET", "/orders", "", 1700000000)["POLY_SIGNATURE"],
		"body":      auth.L2HeadersAt("0xa", "GET", "/book", "{}", 1700000000)["POLY_SIGNATURE"],
		"timestamp": auth.L2HeadersAt("0xa", "GET", "/book", "", 1700000001)["POLY_SIGNATURE"],
	} {
		if sig == base {
			t.Errorf("changing %s did not change the signature", name)
		}
	}
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "api-key-123456", Secret: "c2VjcmV0LXZhbHVl"}
	s := auth.String()
	if strings.Contains(s, "123456") || strings.Contains(s, "dmFsdWU") {
		t.Errorf("String() leaks credentials: %s", s)
	}
}
