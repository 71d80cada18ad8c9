// Package protocol defines the host control messages exchanged with the
// display surfaces and their JSON encoding.
//
// Every message on the wire is an object tagged by its "event" field and
// addressed by "context" (the surface id).
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sweeney/tempo-deck/internal/raster"
	"github.com/sweeney/tempo-deck/internal/render"
	"github.com/sweeney/tempo-deck/internal/surface"
)

// Host event names.
const (
	EventWillAppear         = "willAppear"
	EventWillDisappear      = "willDisappear"
	EventDidReceiveSettings = "didReceiveSettings"
	EventKeyDown            = "keyDown"
	EventSendToPlugin       = "sendToPlugin"

	EventSetImage    = "setImage"
	EventSetTitle    = "setTitle"
	EventGetSettings = "getSettings"
	EventSetSettings = "setSettings"
	EventShowOk      = "showOk"
	EventShowAlert   = "showAlert"
)

// ErrUnknownEvent is returned by Decode for events the agent does not handle.
var ErrUnknownEvent = errors.New("protocol: unknown event")

// Inbound is a message from the host. The concrete types are
// SurfaceAppeared, SurfaceDisappeared, SettingsChanged, ManualTrigger and
// SettingsPush.
type Inbound interface {
	SurfaceID() string
	inbound()
}

// SurfaceAppeared announces a new surface with its initial settings.
type SurfaceAppeared struct {
	ID       string
	Kind     surface.Kind
	Settings json.RawMessage
}

// SurfaceDisappeared announces that a surface went away.
type SurfaceDisappeared struct {
	ID string
}

// SettingsChanged carries the persisted settings of a surface.
type SettingsChanged struct {
	ID       string
	Settings json.RawMessage
}

// ManualTrigger is a user request to refresh now.
type ManualTrigger struct {
	ID string
}

// SettingsPush carries settings sent by the settings editor.
// Settings is nil when the editor sent no settings object.
type SettingsPush struct {
	ID       string
	Settings json.RawMessage
}

func (m SurfaceAppeared) SurfaceID() string    { return m.ID }
func (m SurfaceDisappeared) SurfaceID() string { return m.ID }
func (m SettingsChanged) SurfaceID() string    { return m.ID }
func (m ManualTrigger) SurfaceID() string      { return m.ID }
func (m SettingsPush) SurfaceID() string       { return m.ID }

func (SurfaceAppeared) inbound()    {}
func (SurfaceDisappeared) inbound() {}
func (SettingsChanged) inbound()    {}
func (ManualTrigger) inbound()      {}
func (SettingsPush) inbound()       {}

type envelope struct {
	Event   string          `json:"event"`
	Context string          `json:"context,omitempty"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type settingsPayload struct {
	Settings json.RawMessage `json:"settings"`
}

// Decode parses one host message.
func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode envelope: %w", err)
	}

	switch env.Event {
	case EventWillAppear:
		return SurfaceAppeared{ID: env.Context, Kind: surface.KindForAction(env.Action), Settings: settingsOf(env.Payload)}, nil
	case EventWillDisappear:
		return SurfaceDisappeared{ID: env.Context}, nil
	case EventDidReceiveSettings:
		return SettingsChanged{ID: env.Context, Settings: settingsOf(env.Payload)}, nil
	case EventKeyDown:
		return ManualTrigger{ID: env.Context}, nil
	case EventSendToPlugin:
		return SettingsPush{ID: env.Context, Settings: settingsOf(env.Payload)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
}

// settingsOf extracts payload.settings. A missing or malformed payload
// yields nil, which the settings merge treats as "use defaults".
func settingsOf(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	var p settingsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil
	}
	if string(p.Settings) == "null" {
		return nil
	}
	return p.Settings
}

// Outbound is a message to the host. The concrete types are SetVisual,
// SetTitle, RequestSettings, PushSettings, AckSuccess and AckFailure.
type Outbound interface {
	SurfaceID() string
	outbound()
}

// SetVisual replaces the icon of a surface.
type SetVisual struct {
	ID   string
	Spec render.DrawSpec
}

// SetTitle overlays a short title on a surface.
type SetTitle struct {
	ID    string
	Title string
}

// RequestSettings asks the host for the persisted settings of a surface.
type RequestSettings struct {
	ID string
}

// PushSettings asks the host to persist settings for a surface.
type PushSettings struct {
	ID     string
	Config surface.Config
}

// AckSuccess flashes a success mark on a surface.
type AckSuccess struct {
	ID string
}

// AckFailure flashes an alert on a surface.
type AckFailure struct {
	ID string
}

func (m SetVisual) SurfaceID() string       { return m.ID }
func (m SetTitle) SurfaceID() string        { return m.ID }
func (m RequestSettings) SurfaceID() string { return m.ID }
func (m PushSettings) SurfaceID() string    { return m.ID }
func (m AckSuccess) SurfaceID() string      { return m.ID }
func (m AckFailure) SurfaceID() string      { return m.ID }

func (SetVisual) outbound()       {}
func (SetTitle) outbound()        {}
func (RequestSettings) outbound() {}
func (PushSettings) outbound()    {}
func (AckSuccess) outbound()      {}
func (AckFailure) outbound()      {}

// ImagePayload is the payload of a setImage message. Spec carries the
// abstract draw instructions alongside the rasterised icon.
type ImagePayload struct {
	Image  string   `json:"image"`
	Target int      `json:"target"`
	Spec   SpecJSON `json:"spec"`
}

// SpecJSON is the wire form of a render.DrawSpec.
type SpecJSON struct {
	Background string   `json:"background"`
	InvertText bool     `json:"invertText"`
	Lines      []string `json:"lines"`
}

// TitlePayload is the payload of a setTitle message.
type TitlePayload struct {
	Title  string `json:"title"`
	Target int    `json:"target"`
}

// Encode serialises an outbound message.
func Encode(msg Outbound) ([]byte, error) {
	env := envelope{Event: EventName(msg), Context: msg.SurfaceID()}
	if env.Event == "" {
		return nil, fmt.Errorf("protocol: unsupported outbound %T", msg)
	}

	var payload any
	switch m := msg.(type) {
	case SetVisual:
		img, err := raster.DataURL(m.Spec, raster.DefaultSize)
		if err != nil {
			return nil, err
		}
		lines := m.Spec.Lines
		if lines == nil {
			lines = []string{}
		}
		payload = ImagePayload{
			Image: img,
			Spec:  SpecJSON{Background: m.Spec.Background.Hex(), InvertText: m.Spec.InvertText, Lines: lines},
		}
	case SetTitle:
		payload = TitlePayload{Title: m.Title}
	case PushSettings:
		payload = m.Config
	}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", env.Event, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// EventName returns the wire event name of an outbound message.
func EventName(msg Outbound) string {
	switch msg.(type) {
	case SetVisual:
		return EventSetImage
	case SetTitle:
		return EventSetTitle
	case RequestSettings:
		return EventGetSettings
	case PushSettings:
		return EventSetSettings
	case AckSuccess:
		return EventShowOk
	case AckFailure:
		return EventShowAlert
	}
	return ""
}
