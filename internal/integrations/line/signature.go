package line

import (
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// SignatureHeader carries the base64 HMAC-SHA256 of the raw request body.
const SignatureHeader = "x-line-signature"

// VerifySignature reports whether signature matches body under the channel
// secret. body must be the exact bytes received; re-encoded JSON will not
// verify.
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" || strings.TrimSpace(signature) == "" {
		return false
	}
	return webhook.ValidateSignature(channelSecret, signature, body)
}
