package upi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDispatcher struct {
	uris []string
	err  error
}

func (m *mockDispatcher) Dispatch(uri string) error {
	if m.err != nil {
		return m.err
	}
	m.uris = append(m.uris, uri)
	return nil
}

func validRequest() IntentRequest {
	return IntentRequest{UPIID: "bob@bank", PayeeName: "Bob Sharma", Note: "Payment for E1", Amount: 500}
}

func TestBridgeStartDispatchesIntent(t *testing.T) {
	d := &mockDispatcher{}
	b := NewBridge(d)

	require.NoError(t, b.Start(validRequest()))
	require.Len(t, d.uris, 1)
	assert.Equal(t, "upi://pay?pa=bob%40bank&pn=Bob+Sharma&am=500.00&cu=INR&tn=Payment+for+E1", d.uris[0])
}

func TestBridgeRejectsSecondStartWhileAwaiting(t *testing.T) {
	d := &mockDispatcher{}
	b := NewBridge(d)

	require.NoError(t, b.Start(validRequest()))
	assert.ErrorIs(t, b.Start(validRequest()), ErrAlreadyActive)

	// Any completion frees the slot.
	b.Complete("Status=SUCCESS")
	assert.NoError(t, b.Start(validRequest()))
}

func TestBridgeBadArgs(t *testing.T) {
	b := NewBridge(&mockDispatcher{})

	assert.ErrorIs(t, b.Start(IntentRequest{UPIID: "", Amount: 500}), ErrBadArgs)
	assert.ErrorIs(t, b.Start(IntentRequest{UPIID: "   ", Amount: 500}), ErrBadArgs)
	assert.ErrorIs(t, b.Start(IntentRequest{UPIID: "bob@bank", Amount: 0}), ErrBadArgs)
	assert.ErrorIs(t, b.Start(IntentRequest{UPIID: "bob@bank", Amount: -1}), ErrBadArgs)

	// A rejected start leaves the slot free.
	assert.NoError(t, b.Start(validRequest()))
}

func TestBridgeNoHandlerFreesSlot(t *testing.T) {
	d := &mockDispatcher{err: ErrNoHandler}
	b := NewBridge(d)

	assert.ErrorIs(t, b.Start(validRequest()), ErrNoUPIApp)

	d.err = nil
	assert.NoError(t, b.Start(validRequest()))
}

func TestBridgeDispatchFailureFreesSlot(t *testing.T) {
	d := &mockDispatcher{err: errors.New("activity crashed")}
	b := NewBridge(d)

	err := b.Start(validRequest())
	assert.ErrorIs(t, err, ErrIntentError)

	d.err = nil
	assert.NoError(t, b.Start(validRequest()))
}

func TestBridgeCancelFreesSlot(t *testing.T) {
	b := NewBridge(&mockDispatcher{})

	require.NoError(t, b.Start(validRequest()))
	res := b.Cancel()
	assert.Equal(t, "cancelled", res.Status)
	assert.Empty(t, res.Raw)

	assert.NoError(t, b.Start(validRequest()))
}

func TestBridgeCompleteReturnsParsedResult(t *testing.T) {
	b := NewBridge(&mockDispatcher{})
	require.NoError(t, b.Start(validRequest()))

	res := b.Complete("  txnId=123&Status=SUCCESS&responseCode=00 ")
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "txnId=123&Status=SUCCESS&responseCode=00", res.Raw)
}

func TestParseStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"Status=SUCCESS&txnId=1", "success"},
		{"status=Success", "success"},
		{"Status=SUBMITTED", "submitted"},
		{"status: Pending", "submitted"},
		{"Status=FAILURE", "failure"},
		{"txn failed", "failure"},
		{"User Cancelled the flow", "failure"},
		{"", "unknown"},
		{"gibberish", "unknown"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseStatus(c.raw), "raw=%q", c.raw)
	}
}

func TestIntentURIDefaults(t *testing.T) {
	uri := IntentRequest{UPIID: "bob@bank", Amount: 12.5}.URI()
	assert.Equal(t, "upi://pay?pa=bob%40bank&pn=SliceIt+User&am=12.50&cu=INR&tn=Split+settlement", uri)
}
