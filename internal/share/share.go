// Package share builds deep links and QR codes that open the bot on an event.
package share

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"
)

const startPrefix = "event_"

// QRSize is the edge length of generated QR images in pixels.
const QRSize = 256

// EventLink returns the t.me link that starts the bot on an event.
func EventLink(botUsername string, eventID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, startPrefix, eventID)
}

// ShareURL returns a link that opens the chat app's share sheet for the event link.
func ShareURL(botUsername string, eventID int64) string {
	return "https://t.me/share/url?url=" + url.QueryEscape(EventLink(botUsername, eventID))
}

// ParseStartPayload extracts the event id from a /start argument.
func ParseStartPayload(payload string) (int64, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(payload), startPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// EventQR renders the event link as a PNG.
func EventQR(botUsername string, eventID int64) ([]byte, error) {
	png, err := qrcode.Encode(EventLink(botUsername, eventID), qrcode.Medium, QRSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
