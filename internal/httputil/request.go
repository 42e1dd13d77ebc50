package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// MaxRequestBytes caps chat turn request bodies. Attachments arrive inline
// as base64, so the ceiling sits above the 25 MB decoded attachment limit.
const MaxRequestBytes = 40 << 20

// ParseJSON decodes JSON from the request body into the given destination.
// It limits the request body size to prevent abuse and provides clear error messages.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	return nil
}
