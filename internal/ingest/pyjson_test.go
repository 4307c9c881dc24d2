package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpData(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"section", `{"section":"proof"}`, `{"section": "proof"}`},
		{"key order kept", `{"z":1,"a":2,"m":3}`, `{"z": 1, "a": 2, "m": 3}`},
		{"duplicate key", `{"a":1,"b":2,"a":3}`, `{"a": 3, "b": 2}`},
		{"nested", `{"l":[1,[2,{}],[]],"o":{"p":null,"q":true,"r":false}}`, `{"l": [1, [2, {}], []], "o": {"p": null, "q": true, "r": false}}`},
		{"empty", `{}`, `{}`},
		{"scalar", `"text"`, `"text"`},
		{"null", `null`, `null`},
		{"non ascii", `{"t":"héllo 😀"}`, `{"t": "h\u00e9llo \ud83d\ude00"}`},
		{"escapes", `{"s":"a\"b\\c\/d\n\t\u0001\u007f"}`, `{"s": "a\"b\\c/d\n\t\u0001\u007f"}`},
		{"non ascii key", `{"ключ":1}`, `{"\u043a\u043b\u044e\u0447": 1}`},
		{"integers", `[0,-0,42,-7,123456789012345678901234567890]`, `[0, 0, 42, -7, 123456789012345678901234567890]`},
		{"floats", `[1.0,0.5,-2.25,1e2,1E-5,0.0001,1e16,1.5e300,-0.0]`, `[1.0, 0.5, -2.25, 100.0, 1e-05, 0.0001, 1e+16, 1.5e+300, -0.0]`},
		{"overflow", `[1e400,-1e400]`, `[Infinity, -Infinity]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dumpData([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDumpDataIsASCII(t *testing.T) {
	got, err := dumpData([]byte(`{"emoji":"🚀🚀","mixed":"naïve café"}`))
	require.NoError(t, err)
	for i := 0; i < len(got); i++ {
		assert.Less(t, got[i], byte(0x80), "byte %d of %q", i, got)
	}

	var back map[string]string
	require.NoError(t, json.Unmarshal([]byte(got), &back))
	assert.Equal(t, "🚀🚀", back["emoji"])
	assert.Equal(t, "naïve café", back["mixed"])
}

func TestDumpDataRejectsMalformed(t *testing.T) {
	_, err := dumpData([]byte(`{"a":`))
	assert.Error(t, err)
}
