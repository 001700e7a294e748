package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/relay/internal/intent"
	"github.com/haasonsaas/relay/pkg/models"
)

// Generator is the minimal LLM surface the model-backed tools need.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TimeTool reports the current time, optionally in a named zone.
type TimeTool struct {
	nowFunc func() time.Time
}

func NewTimeTool() *TimeTool {
	return &TimeTool{nowFunc: time.Now}
}

func (t *TimeTool) Name() string { return "get_time" }

func (t *TimeTool) Description() string {
	return "Get the current date and time, optionally for a specific timezone."
}

func (t *TimeTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"timezone": map[string]any{
			"type":        "string",
			"description": "IANA timezone name, e.g. Europe/Amsterdam. Defaults to local time.",
		},
	})
}

func (t *TimeTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *TimeTool) Execute(_ context.Context, params json.RawMessage) (*Result, error) {
	var input struct {
		Timezone string `json:"timezone"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	now := t.nowFunc()
	zone := "local"
	if tz := strings.TrimSpace(input.Timezone); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ErrorResult(fmt.Sprintf("unknown timezone %q", tz)), nil
		}
		now = now.In(loc)
		zone = tz
	}
	return JSONResult(map[string]any{
		"time":     now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"weekday":  now.Weekday().String(),
		"timezone": zone,
	}), nil
}

// WeatherProvider serves current conditions for a location.
type WeatherProvider interface {
	Current(ctx context.Context, location string) (map[string]any, error)
}

// WeatherTool reports current weather through the injected provider.
type WeatherTool struct {
	provider WeatherProvider
}

func NewWeatherTool(provider WeatherProvider) *WeatherTool {
	return &WeatherTool{provider: provider}
}

func (t *WeatherTool) Name() string { return "get_weather" }

func (t *WeatherTool) Description() string {
	return "Get current weather conditions for a location."
}

func (t *WeatherTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"location": map[string]any{
			"type":        "string",
			"description": "City or place name. Defaults to the configured home location.",
		},
	})
}

func (t *WeatherTool) SafetyLevel() models.SafetyLevel { return models.SafetySafe }

func (t *WeatherTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.provider == nil {
		return ErrorResult("weather provider unavailable"), nil
	}
	var input struct {
		Location string `json:"location"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	report, err := t.provider.Current(ctx, strings.TrimSpace(input.Location))
	if err != nil {
		return nil, err
	}
	return JSONResult(report), nil
}

var knownEmotions = []string{"joy", "sadness", "anger", "fear", "surprise", "disgust", "neutral"}

// EmotionTool classifies the emotional tone of a text with the talker model.
type EmotionTool struct {
	generator Generator
}

func NewEmotionTool(generator Generator) *EmotionTool {
	return &EmotionTool{generator: generator}
}

func (t *EmotionTool) Name() string { return "analyze_emotion" }

func (t *EmotionTool) Description() string {
	return "Classify the dominant emotion and mood of a text."
}

func (t *EmotionTool) Schema() json.RawMessage {
	return objectSchema(map[string]any{
		"text": map[string]any{
			"type":        "string",
			"description": "Text to analyze.",
		},
	}, "text")
}

func (t *EmotionTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *EmotionTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	if t.generator == nil {
		return ErrorResult("language model unavailable"), nil
	}
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return ErrorResult("text is required"), nil
	}

	prompt := fmt.Sprintf(
		"Classify the dominant emotion of the text below.\n"+
			"Respond with JSON only: {\"emotion\": one of %s, \"mood\": \"positive\"|\"negative\"|\"neutral\", \"confidence\": 0.0-1.0}\n\nText: %s",
		strings.Join(knownEmotions, ", "), text)

	raw, err := t.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	analysis := parseEmotion(raw)
	analysis["text"] = text
	return JSONResult(analysis), nil
}

// parseEmotion salvages a usable classification from model output. Anything
// unparseable degrades to neutral rather than failing the tool.
func parseEmotion(raw string) map[string]any {
	out := map[string]any{"emotion": "neutral", "mood": "neutral", "confidence": 0.3}

	obj, ok := intent.ExtractJSON(raw)
	if !ok {
		lower := strings.ToLower(raw)
		for _, e := range knownEmotions {
			if strings.Contains(lower, e) {
				out["emotion"] = e
				out["mood"] = moodFor(e)
				out["confidence"] = 0.5
				break
			}
		}
		return out
	}

	var parsed struct {
		Emotion    string  `json:"emotion"`
		Mood       string  `json:"mood"`
		Confidence float64 `json:"confidence"`
	}
	if payload, err := json.Marshal(obj); err != nil || json.Unmarshal(payload, &parsed) != nil {
		return out
	}

	emotion := strings.ToLower(strings.TrimSpace(parsed.Emotion))
	valid := false
	for _, e := range knownEmotions {
		if emotion == e {
			valid = true
			break
		}
	}
	if !valid {
		return out
	}

	out["emotion"] = emotion
	out["mood"] = parsed.Mood
	if parsed.Mood == "" {
		out["mood"] = moodFor(emotion)
	}
	out["confidence"] = parsed.Confidence
	if parsed.Confidence <= 0 || parsed.Confidence > 1 {
		out["confidence"] = 0.75
	}
	return out
}

func moodFor(emotion string) string {
	switch emotion {
	case "joy", "surprise":
		return "positive"
	case "sadness", "anger", "fear", "disgust":
		return "negative"
	default:
		return "neutral"
	}
}
