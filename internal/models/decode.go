package models

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DecodeContent normalizes fetched content for a file of type t.
//
// Text-like types pass through unchanged (content preferred, dataURL as a
// fallback when the backend only returned one of the two fields).
//
// Binary types are normalized into a single self-describing data URI no
// matter whether the backend returned an existing data URI, bare base64,
// or raw bytes. A malformed declared-binary payload returns an error; the
// caller keeps the record and flags it rather than failing the pipeline.
func DecodeContent(t FileType, name, content, dataURL string) (string, error) {
	if !t.Binary() {
		if content != "" {
			return content, nil
		}
		return dataURL, nil
	}

	src := dataURL
	if src == "" {
		src = content
	}
	if src == "" {
		return "", fmt.Errorf("models: empty binary content for %s", name)
	}

	if strings.HasPrefix(src, "data:") {
		// Already a data URI; require the payload separator so a
		// truncated URI is caught here and not in the renderer.
		if !strings.Contains(src, ",") {
			return "", fmt.Errorf("models: malformed data URI for %s", name)
		}
		return src, nil
	}

	mime := t.MIME(name)
	if isBase64(src) {
		return "data:" + mime + ";base64," + src, nil
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString([]byte(src)), nil
}

// isBase64 reports whether s looks like a standard base64 payload. Short
// strings are treated as raw bytes: re-encoding them is cheap and avoids
// false positives like "abcd".
func isBase64(s string) bool {
	if len(s) < 16 || len(s)%4 != 0 {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(s)
	return err == nil
}
