package vehicle

import (
	"github.com/konsolai/bridge/internal/session"
)

// Head-unit UIs are template driven with hard item caps.
const (
	androidAutoMaxItems = 6
	carPlayMaxItems     = 12
)

// AndroidAutoItem is one row in an Android Auto list template: a title,
// a subtitle, and an icon name the app resolves locally.
type AndroidAutoItem struct {
	Title          string `json:"title"`
	Subtitle       string `json:"subtitle"`
	Icon           string `json:"icon"`
	SessionName    string `json:"session_name"`
	NeedsAttention bool   `json:"needs_attention"`
}

// AndroidAutoList is the GET android-auto/sessions payload.
type AndroidAutoList struct {
	Items []AndroidAutoItem `json:"items"`
	Total int               `json:"total"`
}

// CarPlayItem is one row in a CPListTemplate: text, detail text, and an
// image asset name.
type CarPlayItem struct {
	Text           string        `json:"text"`
	DetailText     string        `json:"detail_text"`
	ImageName      string        `json:"image_name"`
	SessionName    string        `json:"session_name"`
	NeedsAttention bool          `json:"needs_attention"`
	State          session.State `json:"state"`
}

// CarPlayList is the GET carplay/sessions payload.
type CarPlayList struct {
	Items []CarPlayItem `json:"items"`
	Total int           `json:"total"`
}

var stateIcons = map[session.State]string{
	session.StateNotRunning:   "ic_stop",
	session.StateStarting:     "ic_hourglass",
	session.StateIdle:         "ic_check_circle",
	session.StateWorking:      "ic_sync",
	session.StateWaitingInput: "ic_warning",
	session.StateError:        "ic_error",
}

var stateImages = map[session.State]string{
	session.StateNotRunning:   "session_stopped",
	session.StateStarting:     "session_starting",
	session.StateIdle:         "session_idle",
	session.StateWorking:      "session_working",
	session.StateWaitingInput: "session_attention",
	session.StateError:        "session_error",
}

// StateIcon maps a state to its Android Auto icon name.
func StateIcon(s session.State) string {
	if icon, ok := stateIcons[s]; ok {
		return icon
	}
	return "ic_help"
}

// StateImage maps a state to its CarPlay image asset name.
func StateImage(s session.State) string {
	if img, ok := stateImages[s]; ok {
		return img
	}
	return "session_unknown"
}

func templateLimit(limit, templateMax int) int {
	if limit <= 0 {
		limit = 5
	}
	if limit > templateMax {
		return templateMax
	}
	return limit
}

// BuildAndroidAutoList projects summaries onto Android Auto's list
// template. Total reports the full session count so the app can show an
// overflow hint.
func BuildAndroidAutoList(summaries []session.SessionSummary, limit int) AndroidAutoList {
	shown := summaries
	if max := templateLimit(limit, androidAutoMaxItems); len(shown) > max {
		shown = shown[:max]
	}

	items := make([]AndroidAutoItem, 0, len(shown))
	for _, s := range shown {
		subtitle := StateLabel(s.State)
		if s.NeedsAttention {
			subtitle = "⚠ " + attentionReasons[s.State]
		}
		items = append(items, AndroidAutoItem{
			Title:          ShortName(s.Name),
			Subtitle:       subtitle,
			Icon:           StateIcon(s.State),
			SessionName:    s.Name,
			NeedsAttention: s.NeedsAttention,
		})
	}
	return AndroidAutoList{Items: items, Total: len(summaries)}
}

// BuildCarPlayList projects summaries onto CarPlay's list template.
func BuildCarPlayList(summaries []session.SessionSummary, limit int) CarPlayList {
	shown := summaries
	if max := templateLimit(limit, carPlayMaxItems); len(shown) > max {
		shown = shown[:max]
	}

	items := make([]CarPlayItem, 0, len(shown))
	for _, s := range shown {
		detail := StateLabel(s.State)
		if s.NeedsAttention {
			detail = "Action needed: " + attentionReasons[s.State]
		}
		items = append(items, CarPlayItem{
			Text:           ShortName(s.Name),
			DetailText:     detail,
			ImageName:      StateImage(s.State),
			SessionName:    s.Name,
			NeedsAttention: s.NeedsAttention,
			State:          s.State,
		})
	}
	return CarPlayList{Items: items, Total: len(summaries)}
}
