package woox

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

func timestampMS() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

// signV1 signs v1-style requests: parameters sorted by key, joined as a
// query string, then "|timestamp". The private websocket auth uses the same
// scheme with no parameters.
func signV1(secret, timestamp string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		fmt.Fprintf(&b, "%s=%s", k, params[k])
	}
	b.WriteByte('|')
	b.WriteString(timestamp)

	return hmacHex(secret, b.String())
}

// signV3 signs v3-style requests: timestamp + METHOD + path, with the JSON
// body appended when present.
func signV3(secret, timestamp, method, path, body string) string {
	return hmacHex(secret, timestamp+method+path+body)
}

func hmacHex(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
