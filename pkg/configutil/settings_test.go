package configutil

import (
	"strings"
	"testing"
)

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	var out struct {
		APIKey     string `mapstructure:"api_key"`
		SampleRate int    `mapstructure:"sample_rate"`
	}
	input := map[string]any{
		"API-Key":     "secret",
		"sample_rate": "16000", // weakly typed
	}
	if err := DecodeSettings(input, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.APIKey != "secret" || out.SampleRate != 16000 {
		t.Fatalf("decoded %+v", out)
	}
}

func TestValidateSettings(t *testing.T) {
	schema := Schema{
		Required: []string{"api_key", "voice_id"},
		Optional: []string{"model_id"},
	}

	tests := []struct {
		name    string
		input   map[string]any
		wantErr string
	}{
		{
			name:  "complete",
			input: map[string]any{"api_key": "k", "voice_id": "v", "model_id": "m"},
		},
		{
			name:  "required only, mixed key casing",
			input: map[string]any{"API_KEY": "k", "voice-id": "v"},
		},
		{
			name:    "missing required",
			input:   map[string]any{"api_key": "k"},
			wantErr: "missing: voice_id",
		},
		{
			name:    "empty required value counts as missing",
			input:   map[string]any{"api_key": "  ", "voice_id": "v"},
			wantErr: "missing: api_key",
		},
		{
			name:    "unknown key",
			input:   map[string]any{"api_key": "k", "voice_id": "v", "voicd_id": "typo"},
			wantErr: "unknown: voicd_id",
		},
		{
			name:    "nil map misses everything",
			input:   nil,
			wantErr: "missing: api_key, voice_id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSettings(tt.input, schema)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSettingsAllowUnknown(t *testing.T) {
	err := ValidateSettings(map[string]any{"api_key": "k", "extra": true}, Schema{
		Required:     []string{"api_key"},
		AllowUnknown: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireString(t *testing.T) {
	if err := RequireString("value", "vendors.stt.settings.api_key"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := RequireString("  ", "vendors.stt.settings.api_key")
	if err == nil || !strings.Contains(err.Error(), "vendors.stt.settings.api_key") {
		t.Fatalf("error = %v, want path in message", err)
	}
}
