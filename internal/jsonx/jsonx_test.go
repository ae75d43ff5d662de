package jsonx

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"padded", "  \n```json\n{}\n```  \n", `{}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestFirstObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{
			name: "prose prefix",
			in:   `Here is the result: {"summary":"x","takeaways":["a"],"actions":[]}`,
			want: `{"summary":"x","takeaways":["a"],"actions":[]}`,
			ok:   true,
		},
		{
			name: "trailing prose and second object",
			in:   `ok {"a":{"b":1}} then {"c":2}`,
			want: `{"a":{"b":1}}`,
			ok:   true,
		},
		{
			name: "braces in strings",
			in:   `x {"s":"}{\"}","n":1} y`,
			want: `{"s":"}{\"}","n":1}`,
			ok:   true,
		},
		{name: "unterminated", in: `{"a":1`, ok: false},
		{name: "none", in: `no json here`, ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FirstObject([]byte(tc.in))
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, string(got))
			}
		})
	}
}

func TestLeadingObject(t *testing.T) {
	got, ok := LeadingObject([]byte(` {"a":"b"};var meta = {};`))
	require.True(t, ok)
	require.Equal(t, `{"a":"b"}`, string(got))

	_, ok = LeadingObject([]byte(`var x = {}`))
	require.False(t, ok)
}

// TestFirstObjectRoundTrip checks that any JSON object embedded in prose is
// recovered byte for byte.
func TestFirstObjectRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		obj := map[string]string{
			rapid.String().Draw(t, "key"): rapid.String().Draw(t, "val"),
		}
		encoded, err := json.Marshal(obj)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		prefix := rapid.StringMatching(`[a-zA-Z :,.]*`).Draw(t, "prefix")
		suffix := rapid.StringMatching(`[a-zA-Z :,.]*`).Draw(t, "suffix")

		got, ok := FirstObject([]byte(prefix + string(encoded) + suffix))
		if !ok {
			t.Fatalf("object not found")
		}
		if string(got) != string(encoded) {
			t.Fatalf("got %s want %s", got, encoded)
		}
	})
}
