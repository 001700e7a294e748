package homeassistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty base url", Config{Token: "t"}},
		{"bad scheme", Config{BaseURL: "ftp://ha.local", Token: "t"}},
		{"missing token", Config{BaseURL: "http://ha.local"}},
		{"gateway without url", Config{BaseURL: "http://ha.local", Token: "t", UseGateway: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.cfg); err == nil {
				t.Error("NewClient accepted invalid config")
			}
		})
	}
}

func TestGatewayProxyRewritesBase(t *testing.T) {
	client, err := NewClient(Config{
		BaseURL:    "http://ha.internal:8123",
		GatewayURL: "https://gw.example.com/",
		UseGateway: true,
		Token:      "t",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.baseURL != "https://gw.example.com/homeassistant" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
}

func TestCallServicePathAndAuth(t *testing.T) {
	var gotPath, gotAuth, gotBody string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		buf := make([]byte, 1024)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.Write([]byte(`[]`))
	})

	if _, err := client.CallService(context.Background(), "light", "turn_on", map[string]any{"entity_id": "light.kitchen"}); err != nil {
		t.Fatalf("CallService: %v", err)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if !strings.Contains(gotBody, "light.kitchen") {
		t.Errorf("body = %q, want entity_id", gotBody)
	}
}

func TestDoJSONErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "entity not found", http.StatusNotFound)
	})
	if _, err := client.GetState(context.Background(), "light.ghost"); err == nil {
		t.Error("GetState succeeded on 404")
	}
}

func TestLightToolTurnOn(t *testing.T) {
	var gotPath string
	var gotData map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotData)
		w.Write([]byte(`[]`))
	})

	tool := &LightTool{client: client}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"room":"living room","state":"on","brightness":128}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.IsError {
		t.Fatalf("IsError: %s", res.Content)
	}
	if gotPath != "/api/services/light/turn_on" {
		t.Errorf("path = %q", gotPath)
	}
	if gotData["entity_id"] != "light.living_room" {
		t.Errorf("entity_id = %v", gotData["entity_id"])
	}
	if gotData["brightness"] != float64(128) {
		t.Errorf("brightness = %v", gotData["brightness"])
	}
}

func TestLightToolRequiresTarget(t *testing.T) {
	tool := &LightTool{client: newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	})}
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"state":"on"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.IsError {
		t.Error("expected soft error when no entity or room given")
	}
}

func TestClimateToolActions(t *testing.T) {
	var gotPath string
	var gotData map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&gotData)
		}
		w.Write([]byte(`{"state":"cool"}`))
	})
	tool := &ClimateTool{client: client}

	t.Run("status", func(t *testing.T) {
		res, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"status"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if gotPath != "/api/states/climate.home" {
			t.Errorf("path = %q", gotPath)
		}
		if !strings.Contains(res.Content, "cool") {
			t.Errorf("content = %q", res.Content)
		}
	})

	t.Run("set_mode", func(t *testing.T) {
		if _, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"set_mode","mode":"heat"}`)); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if gotPath != "/api/services/climate/set_hvac_mode" {
			t.Errorf("path = %q", gotPath)
		}
		if gotData["hvac_mode"] != "heat" {
			t.Errorf("hvac_mode = %v", gotData["hvac_mode"])
		}
	})

	t.Run("set_temperature", func(t *testing.T) {
		if _, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"set_temperature","temperature":22.5}`)); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if gotPath != "/api/services/climate/set_temperature" {
			t.Errorf("path = %q", gotPath)
		}
		if gotData["temperature"] != 22.5 {
			t.Errorf("temperature = %v", gotData["temperature"])
		}
	})

	t.Run("missing mode", func(t *testing.T) {
		res, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"set_mode"}`))
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		if !res.IsError {
			t.Error("expected soft error for set_mode without mode")
		}
	})
}

func TestSceneToolNormalizesName(t *testing.T) {
	var gotData map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotData)
		w.Write([]byte(`[]`))
	})
	tool := &SceneTool{client: client}
	if _, err := tool.Execute(context.Background(), json.RawMessage(`{"scene":"Movie Night"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotData["entity_id"] != "scene.movie_night" {
		t.Errorf("entity_id = %v", gotData["entity_id"])
	}
}
