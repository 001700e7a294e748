package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// fastPathThreshold is the confidence at which a rule match short-circuits
// the LLM fallback.
const fastPathThreshold = 0.85

// roomSynonyms maps surface forms to canonical room names. Longer forms are
// listed first so they win the substring scan.
var roomSynonyms = []struct {
	surface   string
	canonical string
}{
	{"master bedroom", "bedroom"},
	{"my room", "bedroom"},
	{"bedroom", "bedroom"},
	{"living room", "living_room"},
	{"living area", "living_room"},
	{"lounge", "living_room"},
	{"sitting room", "living_room"},
	{"kitchen", "kitchen"},
	{"bathroom", "bathroom"},
	{"home office", "office"},
	{"study", "office"},
	{"office", "office"},
	{"hallway", "hallway"},
	{"hall", "hallway"},
}

// acModeSynonyms maps surface forms to canonical AC modes.
var acModeSynonyms = []struct {
	surface   string
	canonical string
}{
	{"cooling", "cool"},
	{"cooler", "cool"},
	{"cool", "cool"},
	{"cold", "cool"},
	{"heating", "heat"},
	{"heat", "heat"},
	{"warmer", "heat"},
	{"warm", "heat"},
	{"dehumidify", "dry"},
	{"dry", "dry"},
	{"fan only", "fan_only"},
	{"fan", "fan_only"},
	{"automatic", "auto"},
	{"auto", "auto"},
	{"off", "off"},
}

// NormalizeRoom maps a room mention to its canonical value, or "".
func NormalizeRoom(text string) string {
	for _, s := range roomSynonyms {
		if strings.Contains(text, s.surface) {
			return s.canonical
		}
	}
	return ""
}

// NormalizeACMode maps an AC-mode mention to its canonical value, or "".
func NormalizeACMode(text string) string {
	for _, s := range acModeSynonyms {
		if strings.Contains(text, s.surface) {
			return s.canonical
		}
	}
	return ""
}

var temperatureRe = regexp.MustCompile(`(?:set|at|to)\s+(\d{2})\b`)

// ExtractTemperature returns the first integer in [15,35] following
// set/at/to, or 0 when absent.
func ExtractTemperature(text string) int {
	for _, m := range temperatureRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n >= 15 && n <= 35 {
			return n
		}
	}
	return 0
}

// NormalizeParams runs the synonym tables over a parameter map so both
// classification stages emit the same canonical values. The LLM is prompted
// for canonical forms but routinely echoes surface forms back.
func NormalizeParams(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	if mode, ok := params["mode"].(string); ok {
		if canonical := NormalizeACMode(strings.ToLower(mode)); canonical != "" {
			params["mode"] = canonical
		}
	}
	if room, ok := params["room"].(string); ok {
		if canonical := NormalizeRoom(strings.ToLower(room)); canonical != "" {
			params["room"] = canonical
		}
	}
	if temp, ok := params["temperature"].(string); ok {
		if n := ExtractTemperature("to " + strings.ToLower(temp)); n > 0 {
			params["temperature"] = n
		}
	}
	if action, ok := params["action"].(string); ok {
		params["action"] = strings.ToLower(strings.TrimSpace(action))
	}
	if mt, ok := params["media_type"].(string); ok {
		params["media_type"] = strings.ToLower(strings.TrimSpace(mt))
	}
	return params
}

// rule is one fast-path pattern. Rules are checked in priority order; the
// first match at or above the threshold wins.
type rule struct {
	re         *regexp.Regexp
	tag        Tag
	confidence float64
	params     func(text string, m []string) map[string]any
}

var fastRules = []rule{
	// AC temperature before mode: "set the ac to 22" must not read "22" as a mode.
	{
		re:         regexp.MustCompile(`^.*\b(?:set|turn)\b.*\b(?:ac|air con(?:ditioner|ditioning)?|temperature|temp|thermostat)\b.*\b(?:to|at)\s+\d{2}\b.*$`),
		tag:        TagHomeACSetTemp,
		confidence: 0.95,
		params: func(text string, m []string) map[string]any {
			return map[string]any{"action": "set_temp", "temperature": ExtractTemperature(text)}
		},
	},
	{
		re:         regexp.MustCompile(`^.*\b(?:ac|air con(?:ditioner|ditioning)?|thermostat)\b.*\b\d{2}\s*(?:degrees|°)\b.*$`),
		tag:        TagHomeACSetTemp,
		confidence: 0.9,
		params: func(text string, m []string) map[string]any {
			return map[string]any{"action": "set_temp", "temperature": ExtractTemperature(text)}
		},
	},
	{
		re:         regexp.MustCompile(`^.*\b(?:set|switch|put|turn)\b.*\b(?:ac|air con(?:ditioner|ditioning)?)\b.*\b(?:to|on|into)?\s*(cooling|cool|cold|heating|heat|warm|dehumidify|dry|fan only|fan|automatic|auto|off)\b.*$`),
		tag:        TagHomeACSetMode,
		confidence: 0.92,
		params: func(text string, m []string) map[string]any {
			return map[string]any{"action": "set_mode", "mode": NormalizeACMode(m[1])}
		},
	},
	{
		re:         regexp.MustCompile(`^.*\b(?:ac|air con(?:ditioner|ditioning)?)\b.*\b(?:status|state|running|on\?)\b?.*$|^(?:what(?:'s| is)\s+the\s+ac\b.*|is\s+the\s+ac\s+on\??)$`),
		tag:        TagHomeACStatus,
		confidence: 0.88,
		params:     func(string, []string) map[string]any { return map[string]any{} },
	},
	{
		re:         regexp.MustCompile(`^.*\b(?:turn|switch)\s+(on|off)\b.*\blights?\b.*$|^.*\blights?\s+(on|off)\b.*$`),
		tag:        TagHomeLight,
		confidence: 0.93,
		params: func(text string, m []string) map[string]any {
			action := m[1]
			if action == "" {
				action = m[2]
			}
			params := map[string]any{"action": action}
			if room := NormalizeRoom(text); room != "" {
				params["room"] = room
			}
			return params
		},
	},
	{
		re:         regexp.MustCompile(`^.*\b(?:activate|start|run|set)\b.*\b([a-z ]+?)\s+scene\b.*$|^scene\s+([a-z ]+)$`),
		tag:        TagHomeScene,
		confidence: 0.9,
		params: func(text string, m []string) map[string]any {
			scene := strings.TrimSpace(m[1])
			if scene == "" {
				scene = strings.TrimSpace(m[2])
			}
			scene = strings.TrimPrefix(scene, "the ")
			return map[string]any{"scene": scene}
		},
	},
	{
		re:         regexp.MustCompile(`^.*\b(?:home|house)\s+status\b.*$|^.*\bstatus\s+of\s+(?:the\s+)?(?:home|house)\b.*$`),
		tag:        TagHomeStatus,
		confidence: 0.9,
		params:     func(string, []string) map[string]any { return map[string]any{} },
	},
	{
		re:         regexp.MustCompile(`^.*\bdownload\s+queue\b.*$|^.*\bqueue\s+status\b.*$|^(?:what(?:'s| is)\s+)?(?:in\s+)?the\s+queue\??$`),
		tag:        TagMediaQueue,
		confidence: 0.9,
		params:     func(string, []string) map[string]any { return map[string]any{} },
	},
	{
		re:         regexp.MustCompile(`^(?:yes,?\s+)?(?:confirm|approve)\s+(?:the\s+)?download\b.*$|^yes,?\s+download\s+(?:it|that)\b.*$`),
		tag:        TagMediaConfirm,
		confidence: 0.9,
		params:     func(string, []string) map[string]any { return map[string]any{} },
	},
	{
		re:         regexp.MustCompile(`^.*\bdownload\s+(?:the\s+)?(movie\s+|show\s+|series\s+)?(.+?)\s*$`),
		tag:        TagMediaDownload,
		confidence: 0.88,
		params: func(text string, m []string) map[string]any {
			params := map[string]any{"query": strings.TrimSpace(m[2])}
			if t := mediaType(m[1], text); t != "" {
				params["media_type"] = t
			}
			return params
		},
	},
	{
		re:         regexp.MustCompile(`^.*\bsearch\s+(?:for\s+)?(?:the\s+)?(movie\s+|show\s+|series\s+)?(.+?)\s*$|^.*\bfind\s+(?:me\s+)?(?:the\s+)?(movie\s+|show\s+|series\s+)?(.+?)\s*$`),
		tag:        TagMediaSearch,
		confidence: 0.87,
		params: func(text string, m []string) map[string]any {
			kind, query := m[1], m[2]
			if query == "" {
				kind, query = m[3], m[4]
			}
			params := map[string]any{"query": strings.TrimSpace(query)}
			if t := mediaType(kind, text); t != "" {
				params["media_type"] = t
			}
			return params
		},
	},
	{
		re:         regexp.MustCompile(`^.*\bwhat\s+time\b.*$|^.*\bcurrent\s+time\b.*$|^time\??$`),
		tag:        TagSystemTime,
		confidence: 0.95,
		params:     func(string, []string) map[string]any { return map[string]any{} },
	},
	{
		re:         regexp.MustCompile(`^.*\bweather\b.*$|^.*\bforecast\b.*$`),
		tag:        TagSystemWeather,
		confidence: 0.92,
		params: func(text string, m []string) map[string]any {
			params := map[string]any{}
			if loc := weatherLocation(text); loc != "" {
				params["location"] = loc
			}
			return params
		},
	},
	{
		re:         regexp.MustCompile(`^help\??$|^.*\bwhat\s+can\s+you\s+do\b.*$|^.*\bshow\s+(?:me\s+)?(?:the\s+)?commands\b.*$`),
		tag:        TagSystemHelp,
		confidence: 0.95,
		params:     func(string, []string) map[string]any { return map[string]any{} },
	},
}

var weatherLocationRe = regexp.MustCompile(`\bweather\s+(?:in|for|at)\s+([a-z ]+?)(?:\?|$)`)

func weatherLocation(text string) string {
	if m := weatherLocationRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func mediaType(captured, text string) string {
	captured = strings.TrimSpace(captured)
	switch captured {
	case "movie":
		return "movie"
	case "show", "series":
		return "show"
	}
	switch {
	case strings.Contains(text, "movie") || strings.Contains(text, "film"):
		return "movie"
	case strings.Contains(text, "show") || strings.Contains(text, "series") || strings.Contains(text, "episode"):
		return "show"
	}
	return ""
}

// ClassifyRules runs the fast path only. It returns a zero-confidence
// general-chat result when nothing matches.
func ClassifyRules(text string) Result {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for _, r := range fastRules {
		m := r.re.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		return Result{
			Tag:        r.tag,
			Confidence: r.confidence,
			Parameters: r.params(normalized, m),
		}
	}
	return Result{Tag: TagGeneralChat, Confidence: 0, Parameters: map[string]any{}}
}
