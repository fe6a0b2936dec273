package mpesa

import "strconv"

// stkPushPayload is the request body Daraja expects for an STK push,
// field names and casing exactly as documented by Safaricom.
type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

// STKPushResult is Daraja's synchronous answer to a push submission.
// ResponseCode "0" means the prompt was sent to the handset; it says nothing
// about whether the customer will complete the payment.
type STKPushResult struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// CallbackEnvelope is the asynchronous notification Daraja posts to the
// callback URL. The nested Body.stkCallback is mandatory; its absence marks
// the request as malformed or unrelated traffic.
type CallbackEnvelope struct {
	Body struct {
		STKCallback *STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

// STKCallback carries the payment outcome. ResultCode 0 is success; any
// other code is a failure described by ResultDesc. CallbackMetadata is only
// present on success.
type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

// CallbackMetadata is an unordered bag of named items.
type CallbackMetadata struct {
	Item []MetadataItem `json:"Item"`
}

// MetadataItem values arrive as either strings or JSON numbers depending on
// the item, so Value stays loosely typed until coerced.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value,omitempty"`
}

// CallbackResult is the normalized outcome extracted from a callback.
// Metadata fields are zero-valued when the corresponding item was absent.
type CallbackResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	Succeeded         bool
	ResultCode        int
	ResultDesc        string
	Amount            float64
	ReceiptNumber     string
	TransactionDate   string
	PhoneNumber       string
}

// Result flattens the callback into a CallbackResult. Unrecognized metadata
// item names are ignored; missing items leave their fields empty rather than
// failing the callback.
func (c *STKCallback) Result() CallbackResult {
	res := CallbackResult{
		MerchantRequestID: c.MerchantRequestID,
		CheckoutRequestID: c.CheckoutRequestID,
		Succeeded:         c.ResultCode == 0,
		ResultCode:        c.ResultCode,
		ResultDesc:        c.ResultDesc,
	}
	if !res.Succeeded || c.CallbackMetadata == nil {
		return res
	}
	for _, item := range c.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			res.Amount = toFloat(item.Value)
		case "MpesaReceiptNumber":
			res.ReceiptNumber = toString(item.Value)
		case "TransactionDate":
			res.TransactionDate = toString(item.Value)
		case "PhoneNumber":
			res.PhoneNumber = toString(item.Value)
		}
	}
	return res
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// Daraja sends timestamps and MSISDNs as JSON numbers.
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
