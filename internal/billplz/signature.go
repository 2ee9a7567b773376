package billplz

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign computes the hex HMAC-SHA256 over the canonical string: all fields
// except x_signature, sorted by key, joined as key=value pairs with "&".
func Sign(key string, form map[string]string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		if k == "x_signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+form[k])
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares the claimed signature in constant time.
func Verify(key string, form map[string]string, signature string) bool {
	expected := Sign(key, form)
	return hmac.Equal([]byte(expected), []byte(signature))
}
