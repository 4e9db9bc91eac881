package upi

import (
	"fmt"
	"net/url"
)

const (
	defaultPayeeName = "SliceIt User"
	defaultNote      = "Split settlement"
)

// IntentRequest is what the mobile side hands to the bridge to start a
// payment flow in an installed UPI app.
type IntentRequest struct {
	UPIID     string  `json:"upiId"`
	PayeeName string  `json:"payeeName,omitempty"`
	Note      string  `json:"note,omitempty"`
	Amount    float64 `json:"amount"`
}

// URI renders the upi://pay deep link the handler app consumes.
func (r IntentRequest) URI() string {
	pn := r.PayeeName
	if pn == "" {
		pn = defaultPayeeName
	}
	tn := r.Note
	if tn == "" {
		tn = defaultNote
	}

	return fmt.Sprintf(
		"upi://pay?pa=%s&pn=%s&am=%.2f&cu=INR&tn=%s",
		url.QueryEscape(r.UPIID),
		url.QueryEscape(pn),
		r.Amount,
		url.QueryEscape(tn),
	)
}
