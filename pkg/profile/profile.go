package profile

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Role identifies the kind of UI element a selector chain locates.
type Role string

const (
	RoleInput             Role = "input"
	RoleSendButton        Role = "send_button"
	RoleResponseContainer Role = "response_container"
	RoleStopButton        Role = "stop_button"
	RoleLoadingIndicator  Role = "loading_indicator"
	RoleModelSelector     Role = "model_selector"
)

// InputMethod selects how text is entered into the prompt element.
type InputMethod string

const (
	InputDirectSet      InputMethod = "direct-set"
	InputCharByChar     InputMethod = "char-by-char"
	InputClipboardPaste InputMethod = "clipboard-paste"
)

// ClearMethod selects how existing text is removed before input.
type ClearMethod string

const (
	ClearSelectAllDelete ClearMethod = "select-all-delete"
	ClearNative          ClearMethod = "native-clear"
)

// SendMethod selects how a composed prompt is dispatched.
type SendMethod string

const (
	SendClickButton   SendMethod = "click-button"
	SendKeyboardEnter SendMethod = "keyboard-enter"
	SendEither        SendMethod = "either"
)

// ResponseSignal selects which page condition marks a response as complete.
type ResponseSignal string

const (
	SignalBusyIndicatorGone ResponseSignal = "busy-indicator-disappears"
	SignalInputReenabled    ResponseSignal = "input-reenabled"
	SignalSpinnerGone       ResponseSignal = "loading-spinner-gone"
	SignalFixedDelay        ResponseSignal = "fixed-delay"
)

// Duration wraps time.Duration so strategy delays can be written as
// "500ms" or "1s" in catalog YAML.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Strategy describes how to interact with one service's conversation UI.
type Strategy struct {
	InputMethod    InputMethod    `yaml:"input_method"`
	ClearMethod    ClearMethod    `yaml:"clear_method"`
	SendMethod     SendMethod     `yaml:"send_method"`
	PostSendDelay  Duration       `yaml:"post_send_delay"`
	ResponseSignal ResponseSignal `yaml:"response_signal"`
}

// Profile describes one conversational web service: where it lives,
// how to find its controls, and how to talk to it. Profiles are loaded
// once and treated as immutable.
type Profile struct {
	ID            string            `yaml:"id"`
	BaseURL       string            `yaml:"base_url"`
	LoginURL      string            `yaml:"login_url"`
	AuthIndicator string            `yaml:"auth_indicator"`
	Selectors     map[Role][]string `yaml:"selectors"`
	Strategy      Strategy          `yaml:"strategy"`
}

// DefaultStrategy is the interaction strategy applied to services
// without an explicit one: plain fill, select-all clear, send via
// button when present otherwise Enter, and a fixed settle delay as
// the only completion signal.
func DefaultStrategy() Strategy {
	return Strategy{
		InputMethod:    InputDirectSet,
		ClearMethod:    ClearSelectAllDelete,
		SendMethod:     SendEither,
		PostSendDelay:  Duration(time.Second),
		ResponseSignal: SignalFixedDelay,
	}
}
