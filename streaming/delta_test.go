package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		kind     DeltaKind
		fragment string
	}{
		{"content", `{"choices":[{"delta":{"content":"Hal"}}]}`, DeltaComplete, "Hal"},
		{"extra fields ignored", `{"id":"c1","model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"o!"},"finish_reason":null}]}`, DeltaComplete, "o!"},
		{"unicode", `{"choices":[{"delta":{"content":"Halo 😊"}}]}`, DeltaComplete, "Halo 😊"},
		{"escaped newline", `{"choices":[{"delta":{"content":"a\nb"}}]}`, DeltaComplete, "a\nb"},
		{"only first choice", `{"choices":[{"delta":{"content":"a"}},{"delta":{"content":"b"}}]}`, DeltaComplete, "a"},
		{"role only", `{"choices":[{"delta":{"role":"assistant"}}]}`, DeltaNone, ""},
		{"empty content", `{"choices":[{"delta":{"content":""}}]}`, DeltaNone, ""},
		{"null content", `{"choices":[{"delta":{"content":null}}]}`, DeltaNone, ""},
		{"no delta", `{"choices":[{"finish_reason":"stop"}]}`, DeltaNone, ""},
		{"empty choices", `{"choices":[]}`, DeltaNone, ""},
		{"no choices", `{"usage":{"total_tokens":3}}`, DeltaNone, ""},
		{"empty payload", "", DeltaNone, ""},
		{"truncated object", `{"choices":[{"de`, DeltaIncomplete, ""},
		{"truncated string", `{"choices":[{"delta":{"content":"X`, DeltaIncomplete, ""},
		{"truncated literal", `{"choices":[{"delta":{"content":nu`, DeltaIncomplete, ""},
		{"truncated after key", `{"choices"`, DeltaIncomplete, ""},
		{"not json", `hello`, DeltaMalformed, ""},
		{"trailing garbage", `{"choices":[{"delta":{"content":"a"}}]}garbage`, DeltaMalformed, ""},
		{"trailing single byte", `{"choices":[]}x`, DeltaMalformed, ""},
		{"two values", `{"choices":[]} {"choices":[]}`, DeltaMalformed, ""},
		{"wrong shape", `{"choices":"nope"}`, DeltaMalformed, ""},
		{"numeric content", `{"choices":[{"delta":{"content":42}}]}`, DeltaMalformed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Extract(tt.payload)
			assert.Equal(t, tt.kind, d.Kind, d.Kind.String())
			assert.Equal(t, tt.fragment, d.Fragment)
			if tt.kind == DeltaMalformed {
				assert.Error(t, d.Err)
			}
		})
	}
}

func TestDeltaKind_String(t *testing.T) {
	assert.Equal(t, "none", DeltaNone.String())
	assert.Equal(t, "complete", DeltaComplete.String())
	assert.Equal(t, "incomplete", DeltaIncomplete.String())
	assert.Equal(t, "malformed", DeltaMalformed.String())
	assert.Equal(t, "unknown", DeltaKind(99).String())
}
