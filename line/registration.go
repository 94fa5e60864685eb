// ABOUTME: QR-code registration links for binding a LINE account to a deal
// ABOUTME: Issues ULID tokens, builds prefilled oaMessage links and renders QR PNGs
package line

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/oklog/ulid/v2"
	qrcode "github.com/skip2/go-qrcode"
)

// RegistrationPrefix starts the message a customer sends after scanning a QR code.
const RegistrationPrefix = "register:"

// NewRegistrationToken returns a fresh, unguessable deal registration token.
func NewRegistrationToken() string {
	return ulid.Make().String()
}

// RegistrationURL builds a link that opens a chat with the bot with
// "register:<token>" prefilled.
func RegistrationURL(botID, token string) (string, error) {
	if botID == "" {
		return "", fmt.Errorf("line bot id is required for registration links")
	}
	return "https://line.me/R/oaMessage/" + url.PathEscape(botID) + "/?" + url.QueryEscape(RegistrationPrefix+token), nil
}

// ParseRegistrationText extracts the token from a "register:<token>" message.
func ParseRegistrationText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	text = strings.Replace(text, "：", ":", 1)
	if !strings.HasPrefix(strings.ToLower(text), RegistrationPrefix) {
		return "", false
	}
	token := strings.TrimSpace(text[len(RegistrationPrefix):])
	return token, token != ""
}

// RegistrationQR renders content as a PNG QR code of size×size pixels.
func RegistrationQR(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(content, qrcode.Medium, size)
}
