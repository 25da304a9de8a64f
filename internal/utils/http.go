package utils

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ClientIDHeader carries the device identifier that keys rate limiting.
const ClientIDHeader = "X-Client-ID"

// PayloadHashHeader carries the hex HMAC-SHA256 of a push body.
const PayloadHashHeader = "X-Payload-Hash"

// WriteJSON encodes data as the JSON response body with the given status
// and returns the number of body bytes written. An unencodable value is
// answered with a plain 500.
func WriteJSON(w http.ResponseWriter, data any, statusCode int) (int, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "error writing data to JSON", http.StatusInternalServerError)
		return 0, fmt.Errorf("error writing data to JSON: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	return w.Write(jsonData)
}

// ClientIDFromRequest returns the X-Client-ID header, falling back to the
// remote host when a device does not send one.
func ClientIDFromRequest(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ClientIDHeader)); id != "" {
		return id
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
