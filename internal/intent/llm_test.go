package intent

import (
	"testing"
)

func TestParseClassificationNormalizesParameters(t *testing.T) {
	raw := `{"tag":"home-ac-set-mode","parameters":{"mode":"cooling","room":"living room"}}`

	result := parseClassification(raw)
	if result.Tag != TagHomeACSetMode {
		t.Fatalf("Tag = %s", result.Tag)
	}
	if result.Parameters["mode"] != "cool" {
		t.Errorf("mode = %v, want cool", result.Parameters["mode"])
	}
	if result.Parameters["room"] != "living_room" {
		t.Errorf("room = %v, want living_room", result.Parameters["room"])
	}
}

func TestNormalizeParams(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		key  string
		want any
	}{
		{"mode synonym", map[string]any{"mode": "Heating"}, "mode", "heat"},
		{"mode canonical untouched", map[string]any{"mode": "dry"}, "mode", "dry"},
		{"mode unknown preserved", map[string]any{"mode": "turbo"}, "mode", "turbo"},
		{"room synonym", map[string]any{"room": "the study"}, "room", "office"},
		{"temperature string", map[string]any{"temperature": "22"}, "temperature", 22},
		{"temperature out of range preserved", map[string]any{"temperature": "99"}, "temperature", "99"},
		{"action lowercased", map[string]any{"action": " Set_Mode "}, "action", "set_mode"},
		{"media type lowercased", map[string]any{"media_type": "Movie"}, "media_type", "movie"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NormalizeParams(tt.in)
			if got := out[tt.key]; got != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	if out := NormalizeParams(nil); out == nil || len(out) != 0 {
		t.Errorf("NormalizeParams(nil) = %v, want empty map", out)
	}
}
