package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{
	"baseUrl": "https://backend.example/api/",
	"merchantAccount": "TestMerchant",
	"clientKey": "test_key",
	"currency": "EUR",
	"amount": "1299",
	"returnUrl": "app://return",
	"paymentMethods": {"paymentMethods": []}
}`

func TestContractMonitor_AcceptsValidBody(t *testing.T) {
	cm, err := NewContractMonitor(OpenSessionSchema)
	require.NoError(t, err)

	valid, violations, err := cm.Validate([]byte(validBody))
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Empty(t, violations)
}

func TestContractMonitor_ReportsViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing required field", `{"baseUrl": "https://x", "merchantAccount": "m", "currency": "EUR", "amount": "1", "returnUrl": "app://r", "paymentMethods": {}}`},
		{"wrong amount type", `{"baseUrl": "https://x", "merchantAccount": "m", "clientKey": "k", "currency": "EUR", "amount": 1299, "returnUrl": "app://r", "paymentMethods": {}}`},
		{"empty merchant account", `{"baseUrl": "https://x", "merchantAccount": "", "clientKey": "k", "currency": "EUR", "amount": "1", "returnUrl": "app://r", "paymentMethods": {}}`},
		{"bad environment enum", `{"baseUrl": "https://x", "merchantAccount": "m", "clientKey": "k", "currency": "EUR", "amount": "1", "returnUrl": "app://r", "paymentMethods": {}, "environment": "PROD"}`},
		{"non-string additional data value", `{"baseUrl": "https://x", "merchantAccount": "m", "clientKey": "k", "currency": "EUR", "amount": "1", "returnUrl": "app://r", "paymentMethods": {}, "additionalData": {"k": 1}}`},
	}

	cm, err := NewContractMonitor(OpenSessionSchema)
	require.NoError(t, err)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			valid, violations, err := cm.Validate([]byte(tc.body))
			require.NoError(t, err)
			assert.False(t, valid)
			assert.NotEmpty(t, violations)
		})
	}
}

func TestContractMonitor_MalformedJSONErrors(t *testing.T) {
	cm, err := NewContractMonitor(OpenSessionSchema)
	require.NoError(t, err)

	_, _, err = cm.Validate([]byte(`{not json`))
	require.Error(t, err)
}

func TestNewContractMonitor_BadSchemaFails(t *testing.T) {
	_, err := NewContractMonitor(`{"type": 42}`)
	require.Error(t, err)
}

func TestFormatErrors(t *testing.T) {
	assert.Empty(t, FormatErrors(nil))
	assert.Equal(t, "validation errors: a; b", FormatErrors([]string{"a", "b"}))
}
