package whatsapp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// validSignature checks the X-Twilio-Signature header: HMAC-SHA1 over the
// full webhook URL concatenated with the form parameters sorted by name,
// base64-encoded.
func validSignature(authToken, requestURL string, form url.Values, signature string) bool {
	names := make([]string, 0, len(form))
	for name := range form {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := requestURL
	for _, name := range names {
		for _, value := range form[name] {
			payload += name + value
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
