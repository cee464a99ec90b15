package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	testCases := []struct {
		name    string
		raw     string
		want    int
		wantErr error
	}{
		{name: "single object", raw: `{"a":1}`, want: 1},
		{name: "array", raw: `[{"a":1},{"a":2}]`, want: 2},
		{name: "ndjson", raw: "{\"a\":1}\n{\"a\":2}\n\n{\"a\":3}\n", want: 3},
		{name: "group separator", raw: "{\"a\":1}\x1D{\"a\":2}\x1D", want: 2},
		{name: "empty", raw: "  \n", wantErr: ErrEmptyPayload},
		{name: "empty array", raw: `[]`, wantErr: ErrEmptyPayload},
		{name: "bad ndjson line", raw: "{\"a\":1}\n{oops}", wantErr: ErrMalformedPayload},
		{name: "array of scalars", raw: `[1,2]`, wantErr: ErrMalformedPayload},
		{name: "not json", raw: `hello`, wantErr: ErrMalformedPayload},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePayload([]byte(tc.raw))
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tc.want)
		})
	}
}
