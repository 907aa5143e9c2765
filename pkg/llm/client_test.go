package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		apiKey   string
		wantErr  error
		wantNil  bool
	}{
		{name: "anthropic", provider: ProviderAnthropic, apiKey: "sk-test"},
		{name: "openai", provider: ProviderOpenAI, apiKey: "sk-test"},
		{name: "missing credential", provider: ProviderAnthropic, apiKey: "", wantErr: ErrNoCredential},
		{name: "google unsupported", provider: ProviderGoogle, apiKey: "key", wantNil: true},
		{name: "unknown provider", provider: "mistral", apiKey: "key", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.provider, tt.apiKey, "")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			if tt.wantNil {
				assert.Error(t, err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, client)
			assert.NotEmpty(t, client.Model())
		})
	}
}

func TestNewClientModelOverride(t *testing.T) {
	client, err := NewClient(ProviderAnthropic, "sk-test", "claude-opus-4-1")
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-1", client.Model())

	client, err = NewClient(ProviderOpenAI, "sk-test", "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", client.Model())
}

func TestJoinToolInput(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		want      string
	}{
		{name: "empty", fragments: nil, want: "{}"},
		{name: "whitespace only", fragments: []string{"  ", "\n"}, want: "{}"},
		{name: "split json", fragments: []string{`{"path":`, `"src/App.jsx"}`}, want: `{"path":"src/App.jsx"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(joinToolInput(tt.fragments)))
		})
	}
}
