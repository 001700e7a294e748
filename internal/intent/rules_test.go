package intent

import (
	"testing"
)

// TestClassifyRulesTable pins the fast path against a fixed utterance table.
func TestClassifyRulesTable(t *testing.T) {
	tests := []struct {
		text string
		want Tag
	}{
		// home-light
		{"turn on the lights", TagHomeLight},
		{"turn off the bedroom lights", TagHomeLight},
		{"switch on the kitchen light", TagHomeLight},
		{"switch off the office lights", TagHomeLight},
		{"turn the lights off in the living room", TagHomeLight},
		{"lights off", TagHomeLight},
		{"turn on the light in my room", TagHomeLight},
		{"turn on the hallway lights", TagHomeLight},

		// home-ac-status
		{"is the ac running", TagHomeACStatus},
		{"what's the ac status", TagHomeACStatus},
		{"is the ac on?", TagHomeACStatus},
		{"what is the ac state", TagHomeACStatus},

		// home-ac-set-mode
		{"set the ac to cool", TagHomeACSetMode},
		{"switch the ac to heat", TagHomeACSetMode},
		{"put the ac into dry mode", TagHomeACSetMode},
		{"turn the air conditioner to fan only", TagHomeACSetMode},
		{"set ac to auto", TagHomeACSetMode},
		{"set the ac to cooling", TagHomeACSetMode},

		// home-ac-set-temp
		{"set the ac to 22", TagHomeACSetTemp},
		{"set temperature to 25", TagHomeACSetTemp},
		{"turn the thermostat to 20", TagHomeACSetTemp},
		{"set the temp at 18", TagHomeACSetTemp},
		{"make the ac 23 degrees", TagHomeACSetTemp},

		// home-scene
		{"activate the movie scene", TagHomeScene},
		{"run the goodnight scene", TagHomeScene},
		{"set the morning scene", TagHomeScene},
		{"scene movie night", TagHomeScene},

		// home-status
		{"home status", TagHomeStatus},
		{"what's the status of the house", TagHomeStatus},
		{"give me the home status", TagHomeStatus},

		// media-search
		{"search for dune", TagMediaSearch},
		{"search for the movie interstellar", TagMediaSearch},
		{"find me the show andor", TagMediaSearch},
		{"find a good thriller movie", TagMediaSearch},
		{"search inception", TagMediaSearch},

		// media-download
		{"download the movie inception", TagMediaDownload},
		{"download oppenheimer", TagMediaDownload},
		{"please download the show severance", TagMediaDownload},
		{"download the expanse", TagMediaDownload},

		// media-queue
		{"what's in the download queue", TagMediaQueue},
		{"show the download queue", TagMediaQueue},
		{"queue status", TagMediaQueue},
		{"what's the queue?", TagMediaQueue},

		// media-confirm
		{"confirm the download", TagMediaConfirm},
		{"yes, confirm download", TagMediaConfirm},
		{"yes, download it", TagMediaConfirm},
		{"approve download", TagMediaConfirm},

		// system-time
		{"what time is it", TagSystemTime},
		{"current time", TagSystemTime},
		{"time?", TagSystemTime},

		// system-weather
		{"what's the weather like", TagSystemWeather},
		{"weather in tokyo", TagSystemWeather},
		{"forecast for tomorrow", TagSystemWeather},
		{"what's the weather in paris?", TagSystemWeather},

		// system-help
		{"help", TagSystemHelp},
		{"what can you do", TagSystemHelp},
		{"show me the commands", TagSystemHelp},

		// general-chat: nothing above may fire
		{"hello", TagGeneralChat},
		{"how are you", TagGeneralChat},
		{"tell me a joke", TagGeneralChat},
		{"thanks!", TagGeneralChat},
		{"what's the meaning of life", TagGeneralChat},
		{"good morning", TagGeneralChat},
		{"who won the world cup", TagGeneralChat},
		{"recommend a recipe for dinner", TagGeneralChat},
	}

	if len(tests) < 60 {
		t.Fatalf("utterance table has %d entries, want at least 60", len(tests))
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ClassifyRules(tt.text)
			if got.Tag != tt.want {
				t.Errorf("ClassifyRules(%q).Tag = %s, want %s", tt.text, got.Tag, tt.want)
			}
			if tt.want != TagGeneralChat && got.Confidence < fastPathThreshold {
				t.Errorf("ClassifyRules(%q).Confidence = %v, want >= %v", tt.text, got.Confidence, fastPathThreshold)
			}
			if tt.want == TagGeneralChat && got.Confidence != 0 {
				t.Errorf("ClassifyRules(%q).Confidence = %v, want 0 for rules miss", tt.text, got.Confidence)
			}
		})
	}
}

func TestClassifyRulesParameters(t *testing.T) {
	tests := []struct {
		text string
		want map[string]any
	}{
		{"set the ac to cool", map[string]any{"action": "set_mode", "mode": "cool"}},
		{"set the ac to 22", map[string]any{"action": "set_temp", "temperature": 22}},
		{"turn off the bedroom lights", map[string]any{"action": "off", "room": "bedroom"}},
		{"switch on the kitchen light", map[string]any{"action": "on", "room": "kitchen"}},
		{"turn the air conditioner to fan only", map[string]any{"action": "set_mode", "mode": "fan_only"}},
		{"search for the movie interstellar", map[string]any{"query": "interstellar", "media_type": "movie"}},
		{"find me the show andor", map[string]any{"query": "andor", "media_type": "show"}},
		{"weather in tokyo", map[string]any{"location": "tokyo"}},
		{"activate the movie scene", map[string]any{"scene": "movie"}},
		{"download the movie inception", map[string]any{"query": "inception", "media_type": "movie"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ClassifyRules(tt.text)
			if len(got.Parameters) != len(tt.want) {
				t.Fatalf("Parameters = %v, want %v", got.Parameters, tt.want)
			}
			for k, want := range tt.want {
				if got.Parameters[k] != want {
					t.Errorf("Parameters[%q] = %v, want %v", k, got.Parameters[k], want)
				}
			}
		})
	}
}

func TestNormalizeRoom(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"the master bedroom please", "bedroom"},
		{"in my room", "bedroom"},
		{"the living area", "living_room"},
		{"the lounge", "living_room"},
		{"in the study", "office"},
		{"down the hall", "hallway"},
		{"the garage", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRoom(tt.in); got != tt.want {
			t.Errorf("NormalizeRoom(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeACMode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"cooling", "cool"},
		{"make it warmer", "heat"},
		{"dehumidify", "dry"},
		{"fan only", "fan_only"},
		{"automatic", "auto"},
		{"turbo", ""},
	}
	for _, tt := range tests {
		if got := NormalizeACMode(tt.in); got != tt.want {
			t.Errorf("NormalizeACMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractTemperature(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"set the ac to 22", 22},
		{"keep it at 18", 18},
		{"set temperature to 35", 35},
		{"set the ac to 99", 0},  // out of range
		{"set a timer to 10", 0}, // below range
		{"no numbers here", 0},
	}
	for _, tt := range tests {
		if got := ExtractTemperature(tt.in); got != tt.want {
			t.Errorf("ExtractTemperature(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
