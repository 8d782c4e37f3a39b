// Package monitor validates inbound open-session requests against a JSON
// schema before any session work begins.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// OpenSessionSchema describes the boundary request accepted by the demo
// server: the enumerated option set plus the payment-methods catalog.
const OpenSessionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["baseUrl", "merchantAccount", "clientKey", "currency", "amount", "returnUrl", "paymentMethods"],
  "properties": {
    "baseUrl": {"type": "string", "minLength": 1},
    "merchantAccount": {"type": "string", "minLength": 1},
    "clientKey": {"type": "string"},
    "currency": {"type": "string", "minLength": 1},
    "amount": {"type": "string", "minLength": 1},
    "lineItem": {
      "type": "object",
      "properties": {
        "id": {"type": "string"},
        "description": {"type": "string"}
      }
    },
    "environment": {"type": "string", "enum": ["TEST", "LIVE_US", "LIVE_AUSTRALIA", "LIVE_EUROPE"]},
    "reference": {"type": "string"},
    "returnUrl": {"type": "string", "minLength": 1},
    "shopperReference": {"type": "string"},
    "locale": {"type": "string"},
    "additionalData": {"type": "object", "additionalProperties": {"type": "string"}},
    "applePayMerchantId": {"type": "string"},
    "paymentMethods": {"type": "object"},
    "paymentMethod": {"type": "object"}
  }
}`

// ContractMonitor validates request bodies against a compiled JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the given schema document.
func NewContractMonitor(schemaJSON string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("monitor: compile schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate checks the request body against the schema. It returns true when
// valid, or false and the list of violations.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validate: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}

	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins validation violations into one message.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "validation errors: " + strings.Join(violations, "; ")
}
