package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name, given, want string
	}{
		{name: "sessions/a.ndjson", want: NDJSON},
		{name: "sessions/a.jsonl", want: NDJSON},
		{name: "sessions/a.json", want: "application/json"},
		{name: "sessions/a", want: "application/octet-stream"},
		{name: "sessions/a.zzz-unknown", want: "application/octet-stream"},
		{name: "sessions/a.ndjson", given: "text/plain", want: "text/plain"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, ContentType(tc.name, tc.given), tc.name)
	}
}
