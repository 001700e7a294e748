// Package intent maps free-form user text to a typed intent. Classification
// is two-stage: an anchored-regex fast path covers the obvious cases and a
// small-LLM fallback handles paraphrases, with defensive JSON extraction so
// a malformed model response can never fail the caller.
package intent

// Tag identifies an intent in the closed set.
type Tag string

const (
	TagHomeLight     Tag = "home-light"
	TagHomeACStatus  Tag = "home-ac-status"
	TagHomeACSetMode Tag = "home-ac-set-mode"
	TagHomeACSetTemp Tag = "home-ac-set-temp"
	TagHomeScene     Tag = "home-scene"
	TagHomeStatus    Tag = "home-status"
	TagMediaSearch   Tag = "media-search"
	TagMediaDownload Tag = "media-download"
	TagMediaQueue    Tag = "media-queue"
	TagMediaConfirm  Tag = "media-confirm"
	TagSystemTime    Tag = "system-time"
	TagSystemWeather Tag = "system-weather"
	TagSystemHelp    Tag = "system-help"
	TagGeneralChat   Tag = "general-chat"
)

// AllTags lists every tag, in the order they are enumerated to the LLM.
var AllTags = []Tag{
	TagHomeLight,
	TagHomeACStatus,
	TagHomeACSetMode,
	TagHomeACSetTemp,
	TagHomeScene,
	TagHomeStatus,
	TagMediaSearch,
	TagMediaDownload,
	TagMediaQueue,
	TagMediaConfirm,
	TagSystemTime,
	TagSystemWeather,
	TagSystemHelp,
	TagGeneralChat,
}

// tagSet speeds membership checks and fuzzy matching.
var tagSet = func() map[Tag]bool {
	m := make(map[Tag]bool, len(AllTags))
	for _, t := range AllTags {
		m[t] = true
	}
	return m
}()

// paramContracts documents each tag's parameter contract for the LLM prompt.
var paramContracts = map[Tag]string{
	TagHomeLight:     `{"action":"on|off","room":"bedroom|living_room|kitchen|bathroom|office|hallway"}`,
	TagHomeACStatus:  `{}`,
	TagHomeACSetMode: `{"action":"set_mode","mode":"cool|heat|dry|fan_only|auto|off"}`,
	TagHomeACSetTemp: `{"action":"set_temp","temperature":15-35}`,
	TagHomeScene:     `{"scene":"<scene name>"}`,
	TagHomeStatus:    `{}`,
	TagMediaSearch:   `{"query":"<title>","media_type":"movie|show (optional)"}`,
	TagMediaDownload: `{"query":"<title>","media_type":"movie|show (optional)"}`,
	TagMediaQueue:    `{}`,
	TagMediaConfirm:  `{}`,
	TagSystemTime:    `{}`,
	TagSystemWeather: `{"location":"<place> (optional)"}`,
	TagSystemHelp:    `{}`,
	TagGeneralChat:   `{}`,
}

// Result is the classifier output.
type Result struct {
	Tag              Tag            `json:"tag"`
	Confidence       float64        `json:"confidence"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	UsedLLM          bool           `json:"used_llm"`
	ClassificationMS int64          `json:"classification_ms"`
}
