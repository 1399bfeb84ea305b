package api

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
	contentTypeText = "text/plain; charset=utf-8"
)

// wantsCBOR reports whether the client accepts CBOR.
func wantsCBOR(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		for part := range strings.SplitSeq(accept, ",") {
			mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err == nil && mediaType == contentTypeCBOR {
				return true
			}
		}
	}
	return false
}

// render writes v as CBOR when the client asks for it, as JSON otherwise.
func (a *API) render(w http.ResponseWriter, r *http.Request, status int, v any) {
	var (
		buf         []byte
		err         error
		contentType string
	)

	if wantsCBOR(r) {
		buf, err = a.cborEnc.Marshal(v)
		contentType = contentTypeCBOR
	} else {
		buf, err = json.Marshal(v)
		contentType = contentTypeJSON
	}

	if err != nil {
		a.tel.LogError("failed to encode response", err, "path", r.URL.Path)
		writeText(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)

	if _, err := w.Write(buf); err != nil {
		a.tel.LogDebug("failed to write response", "reason", err)
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", contentTypeText)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(text))
}
