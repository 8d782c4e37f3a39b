package wire

import (
	"encoding/json"
	"fmt"
)

// ActionType discriminates the follow-up step the backend requires.
type ActionType string

const (
	ActionRedirect ActionType = "redirect"
	ActionThreeDS2 ActionType = "threeDS2"
	ActionAwait    ActionType = "await"
	ActionSDK      ActionType = "sdk"
	// ActionUnknown marks a discriminant this version does not recognize.
	// Unknown actions decode successfully so newer backends keep working.
	ActionUnknown ActionType = "unknown"
)

// RedirectAction sends the shopper to an external page and back.
type RedirectAction struct {
	URL    string            `json:"url"`
	Method string            `json:"method,omitempty"`
	Data   map[string]string `json:"data,omitempty"`
}

// ThreeDS2Action runs a device fingerprint or cardholder challenge.
type ThreeDS2Action struct {
	Subtype string `json:"subtype,omitempty"`
	Token   string `json:"token"`
}

// AwaitAction polls until the shopper approves out of band.
type AwaitAction struct {
	PaymentMethodType string `json:"paymentMethodType,omitempty"`
}

// SDKAction hands control to a payment-method native SDK.
type SDKAction struct {
	PaymentMethodType string            `json:"paymentMethodType,omitempty"`
	SDKData           map[string]string `json:"sdkData,omitempty"`
}

// UnknownAction preserves an unrecognized action payload verbatim.
type UnknownAction struct {
	Type string
	Raw  json.RawMessage
}

// Action is the closed union of follow-up steps. Exactly one variant pointer
// is set, matching Type.
type Action struct {
	Type        ActionType
	PaymentData string

	Redirect *RedirectAction
	ThreeDS2 *ThreeDS2Action
	Await    *AwaitAction
	SDK      *SDKAction
	Unknown  *UnknownAction

	// Raw is the payload as received, kept so the action can be handed to
	// the UI collaborator byte for byte.
	Raw json.RawMessage
}

// UnmarshalJSON decodes the tagged union. Unknown discriminants land in the
// Unknown variant instead of failing.
func (a *Action) UnmarshalJSON(data []byte) error {
	var head struct {
		Type        string `json:"type"`
		PaymentData string `json:"paymentData"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("action: %w", err)
	}
	if head.Type == "" {
		return fmt.Errorf("action: missing type")
	}

	a.PaymentData = head.PaymentData
	a.Raw = append(json.RawMessage(nil), data...)

	switch ActionType(head.Type) {
	case ActionRedirect:
		a.Type = ActionRedirect
		a.Redirect = &RedirectAction{}
		return a.decodeVariant(data, a.Redirect)
	case ActionThreeDS2:
		a.Type = ActionThreeDS2
		a.ThreeDS2 = &ThreeDS2Action{}
		return a.decodeVariant(data, a.ThreeDS2)
	case ActionAwait:
		a.Type = ActionAwait
		a.Await = &AwaitAction{}
		return a.decodeVariant(data, a.Await)
	case ActionSDK:
		a.Type = ActionSDK
		a.SDK = &SDKAction{}
		return a.decodeVariant(data, a.SDK)
	default:
		a.Type = ActionUnknown
		a.Unknown = &UnknownAction{Type: head.Type, Raw: a.Raw}
		return nil
	}
}

func (a *Action) decodeVariant(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("action %q: %w", a.Type, err)
	}
	return nil
}

// MarshalJSON re-emits the payload as received when available, so a decoded
// action survives a round trip unchanged.
func (a Action) MarshalJSON() ([]byte, error) {
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}

	body := map[string]any{"type": string(a.Type)}
	if a.PaymentData != "" {
		body["paymentData"] = a.PaymentData
	}
	switch {
	case a.Redirect != nil:
		body["url"] = a.Redirect.URL
		if a.Redirect.Method != "" {
			body["method"] = a.Redirect.Method
		}
		if len(a.Redirect.Data) > 0 {
			body["data"] = a.Redirect.Data
		}
	case a.ThreeDS2 != nil:
		body["token"] = a.ThreeDS2.Token
		if a.ThreeDS2.Subtype != "" {
			body["subtype"] = a.ThreeDS2.Subtype
		}
	case a.Await != nil:
		if a.Await.PaymentMethodType != "" {
			body["paymentMethodType"] = a.Await.PaymentMethodType
		}
	case a.SDK != nil:
		if a.SDK.PaymentMethodType != "" {
			body["paymentMethodType"] = a.SDK.PaymentMethodType
		}
		if len(a.SDK.SDKData) > 0 {
			body["sdkData"] = a.SDK.SDKData
		}
	case a.Unknown != nil:
		return append(json.RawMessage(nil), a.Unknown.Raw...), nil
	}
	return json.Marshal(body)
}
