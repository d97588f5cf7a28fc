// Package storage holds what the blob store backends share: the write-once
// contract for session transcripts and content type resolution.
package storage

import (
	"errors"
	"mime"
	"path"
)

// ErrObjectExists is returned when a transcript has already been written.
// Transcripts are immutable once archived.
var ErrObjectExists = errors.New("object already exists")

// NDJSON is the content type of session transcripts.
const NDJSON = "application/x-ndjson"

// ContentType returns given when set, otherwise a type derived from the
// object name's extension. Unknown extensions fall back to octet-stream.
func ContentType(name, given string) string {
	if given != "" {
		return given
	}
	switch ext := path.Ext(name); ext {
	case ".ndjson", ".jsonl":
		return NDJSON
	case "":
		return "application/octet-stream"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}
