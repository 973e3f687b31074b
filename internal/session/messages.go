package session

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/controller"
)

// ClientMessage is a page event sent by the browser.
type ClientMessage struct {
	Type   string `json:"type"`
	URL    string `json:"url,omitempty"`
	Value  string `json:"value,omitempty"`
	Key    string `json:"key,omitempty"`
	Alt    bool   `json:"alt,omitempty"`
	Ctrl   bool   `json:"ctrl,omitempty"`
	Meta   bool   `json:"meta,omitempty"`
	Target string `json:"target,omitempty"`
	Index  int    `json:"index,omitempty"`
}

// ServerMessage is a view or history command for the page. Pointer fields
// distinguish "false" and "0" from absent.
type ServerMessage struct {
	Op      string   `json:"op"`
	Visible *bool    `json:"visible,omitempty"`
	Busy    *bool    `json:"busy,omitempty"`
	Value   *string  `json:"value,omitempty"`
	Header  *string  `json:"header,omitempty"`
	Items   []string `json:"items,omitempty"`
	Index   *int     `json:"index,omitempty"`
	URL     string   `json:"url,omitempty"`
	Words   []string `json:"words,omitempty"`
	Message string   `json:"message,omitempty"`
}

const (
	OpShowSearch    = "show_search"
	OpFocusInput    = "focus_input"
	OpSetInput      = "set_input"
	OpSetBusy       = "set_busy"
	OpShowResults   = "show_results"
	OpRenderResults = "render_results"
	OpFocusResult   = "focus_result"
	OpNavigate      = "navigate"
	OpMark          = "mark"
	OpFadeMarks     = "fade_marks"
	OpUnmark        = "unmark"
	OpPushState     = "push_state"
	OpReplaceState  = "replace_state"
	OpError         = "error"
)

func ptr[T any](v T) *T { return &v }

// toEvent maps a client message onto a controller event.
func toEvent(m ClientMessage) (controller.Event, error) {
	switch m.Type {
	case "load", "popstate":
		if m.URL == "" {
			return nil, fmt.Errorf("%s message without url", m.Type)
		}
		return controller.LocationChanged{URL: m.URL}, nil
	case "icon":
		return controller.IconClicked{}, nil
	case "input":
		return controller.InputChanged{Value: m.Value}, nil
	case "key":
		target, err := parseTarget(m.Target)
		if err != nil {
			return nil, err
		}
		return controller.KeyPressed{Key: m.Key, Alt: m.Alt, Ctrl: m.Ctrl, Meta: m.Meta, Target: target}, nil
	case "result":
		return controller.ResultClicked{Index: m.Index}, nil
	case "mark":
		return controller.MarkClicked{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

func parseTarget(s string) (controller.Target, error) {
	switch s {
	case "", "body":
		return controller.TargetBody, nil
	case "search":
		return controller.TargetSearchInput, nil
	case "input":
		return controller.TargetOtherInput, nil
	default:
		return 0, fmt.Errorf("unknown key target %q", s)
	}
}
