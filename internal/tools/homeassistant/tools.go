package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/pkg/models"
)

// Tools returns the three home-automation tools backed by one client.
func Tools(client *Client) []tools.Tool {
	return []tools.Tool{
		&LightTool{client: client},
		&ClimateTool{client: client},
		&SceneTool{client: client},
	}
}

// entityFor builds an entity id from an explicit id or a room name.
func entityFor(domain, entityID, room string) string {
	if id := strings.TrimSpace(entityID); id != "" {
		return id
	}
	room = strings.TrimSpace(strings.ToLower(room))
	if room == "" {
		return ""
	}
	return domain + "." + strings.ReplaceAll(room, " ", "_")
}

// LightTool turns lights on and off.
type LightTool struct {
	client *Client
}

func (t *LightTool) Name() string { return "control_light" }

func (t *LightTool) Description() string {
	return "Turn a light on or off, optionally with a brightness level."
}

func (t *LightTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entity_id": map[string]any{
				"type":        "string",
				"description": "Light entity id, e.g. light.living_room.",
			},
			"room": map[string]any{
				"type":        "string",
				"description": "Room name, used when entity_id is not given.",
			},
			"state": map[string]any{
				"type": "string",
				"enum": []string{"on", "off"},
			},
			"brightness": map[string]any{
				"type":    "integer",
				"minimum": 0,
				"maximum": 255,
			},
		},
		"required": []string{"state"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *LightTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *LightTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("home assistant not configured"), nil
	}
	var input struct {
		EntityID   string `json:"entity_id"`
		Room       string `json:"room"`
		State      string `json:"state"`
		Brightness *int   `json:"brightness"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	entity := entityFor("light", input.EntityID, input.Room)
	if entity == "" {
		return tools.ErrorResult("entity_id or room is required"), nil
	}

	service := "turn_off"
	data := map[string]any{"entity_id": entity}
	if strings.EqualFold(input.State, "on") {
		service = "turn_on"
		if input.Brightness != nil {
			data["brightness"] = *input.Brightness
		}
	}

	if _, err := t.client.CallService(ctx, "light", service, data); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"entity_id": entity, "state": strings.ToLower(input.State)}), nil
}

// ClimateTool reads and sets AC state.
type ClimateTool struct {
	client *Client

	// DefaultEntity is used when a request names no entity and no room.
	DefaultEntity string
}

func (t *ClimateTool) Name() string { return "control_climate" }

func (t *ClimateTool) Description() string {
	return "Check or change the air conditioner: status, HVAC mode, or target temperature."
}

func (t *ClimateTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{
				"type": "string",
				"enum": []string{"status", "set_mode", "set_temperature"},
			},
			"entity_id": map[string]any{"type": "string"},
			"room":      map[string]any{"type": "string"},
			"mode": map[string]any{
				"type":        "string",
				"description": "HVAC mode for set_mode: cool, heat, dry, fan_only, auto, off.",
			},
			"temperature": map[string]any{
				"type":        "number",
				"description": "Target temperature in degrees for set_temperature.",
			},
		},
		"required": []string{"action"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *ClimateTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *ClimateTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("home assistant not configured"), nil
	}
	var input struct {
		Action      string   `json:"action"`
		EntityID    string   `json:"entity_id"`
		Room        string   `json:"room"`
		Mode        string   `json:"mode"`
		Temperature *float64 `json:"temperature"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}

	entity := entityFor("climate", input.EntityID, input.Room)
	if entity == "" {
		entity = t.DefaultEntity
	}
	if entity == "" {
		entity = "climate.home"
	}

	switch strings.ToLower(strings.TrimSpace(input.Action)) {
	case "status":
		state, err := t.client.GetState(ctx, entity)
		if err != nil {
			return nil, err
		}
		return &tools.Result{Content: string(state), JSON: state}, nil

	case "set_mode":
		mode := strings.ToLower(strings.TrimSpace(input.Mode))
		if mode == "" {
			return tools.ErrorResult("mode is required for set_mode"), nil
		}
		if _, err := t.client.CallService(ctx, "climate", "set_hvac_mode", map[string]any{
			"entity_id": entity,
			"hvac_mode": mode,
		}); err != nil {
			return nil, err
		}
		return tools.JSONResult(map[string]any{"entity_id": entity, "mode": mode}), nil

	case "set_temperature":
		if input.Temperature == nil {
			return tools.ErrorResult("temperature is required for set_temperature"), nil
		}
		if _, err := t.client.CallService(ctx, "climate", "set_temperature", map[string]any{
			"entity_id":   entity,
			"temperature": *input.Temperature,
		}); err != nil {
			return nil, err
		}
		return tools.JSONResult(map[string]any{"entity_id": entity, "temperature": *input.Temperature}), nil

	default:
		return tools.ErrorResult(fmt.Sprintf("unsupported action %q", input.Action)), nil
	}
}

// SceneTool activates a scene.
type SceneTool struct {
	client *Client
}

func (t *SceneTool) Name() string { return "activate_scene" }

func (t *SceneTool) Description() string {
	return "Activate a named scene, e.g. movie night or good morning."
}

func (t *SceneTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scene": map[string]any{
				"type":        "string",
				"description": "Scene name or entity id.",
			},
		},
		"required": []string{"scene"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *SceneTool) SafetyLevel() models.SafetyLevel { return models.SafetyCaution }

func (t *SceneTool) Execute(ctx context.Context, params json.RawMessage) (*tools.Result, error) {
	if t.client == nil {
		return tools.ErrorResult("home assistant not configured"), nil
	}
	var input struct {
		Scene string `json:"scene"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return tools.ErrorResult(fmt.Sprintf("invalid parameters: %v", err)), nil
	}
	scene := strings.TrimSpace(strings.ToLower(input.Scene))
	if scene == "" {
		return tools.ErrorResult("scene is required"), nil
	}
	if !strings.HasPrefix(scene, "scene.") {
		scene = "scene." + strings.ReplaceAll(scene, " ", "_")
	}

	if _, err := t.client.CallService(ctx, "scene", "turn_on", map[string]any{"entity_id": scene}); err != nil {
		return nil, err
	}
	return tools.JSONResult(map[string]any{"scene": scene, "activated": true}), nil
}
