package mpesa

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successCallback = `{
  "Body": {
	"stkCallback": {
	  "MerchantRequestID": "mr-1",
	  "CheckoutRequestID": "ws_CO_1",
	  "ResultCode": 0,
	  "ResultDesc": "The service request is processed successfully.",
	  "CallbackMetadata": {
		"Item": [
		  {"Name": "Amount", "Value": 500},
		  {"Name": "MpesaReceiptNumber", "Value": "QCA12345"},
		  {"Name": "TransactionDate", "Value": 20250307143000},
		  {"Name": "PhoneNumber", "Value": 254712345678},
		  {"Name": "Balance"}
		]
	  }
	}
  }
}`

func TestCallbackResultSuccess(t *testing.T) {
	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(successCallback), &env))
	require.NotNil(t, env.Body.STKCallback)

	res := env.Body.STKCallback.Result()
	assert.True(t, res.Succeeded)
	assert.Equal(t, "ws_CO_1", res.CheckoutRequestID)
	assert.Equal(t, float64(500), res.Amount)
	assert.Equal(t, "QCA12345", res.ReceiptNumber)
	assert.Equal(t, "20250307143000", res.TransactionDate)
	assert.Equal(t, "254712345678", res.PhoneNumber)
}

func TestCallbackResultFailure(t *testing.T) {
	cb := &STKCallback{
		CheckoutRequestID: "ws_CO_2",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user",
	}
	res := cb.Result()
	assert.False(t, res.Succeeded)
	assert.Equal(t, 1032, res.ResultCode)
	assert.Equal(t, "Request cancelled by user", res.ResultDesc)
	assert.Empty(t, res.ReceiptNumber)
}

func TestCallbackResultMissingMetadataItems(t *testing.T) {
	cb := &STKCallback{
		CheckoutRequestID: "ws_CO_3",
		ResultCode:        0,
		CallbackMetadata: &CallbackMetadata{Item: []MetadataItem{
			{Name: "MpesaReceiptNumber", Value: "QCA99999"},
			{Name: "SomethingElse", Value: "ignored"},
		}},
	}
	res := cb.Result()
	assert.True(t, res.Succeeded)
	assert.Equal(t, "QCA99999", res.ReceiptNumber)
	assert.Zero(t, res.Amount)
	assert.Empty(t, res.PhoneNumber)
}

func TestCallbackEnvelopeMissingBody(t *testing.T) {
	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(`{"hello":"world"}`), &env))
	assert.Nil(t, env.Body.STKCallback)
}
