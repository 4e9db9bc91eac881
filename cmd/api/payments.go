package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"sliceit/internal/params"
	"sliceit/internal/settlement"
)

type InitiatePaymentPayload struct {
	ExpenseID   string  `json:"expense_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	ReceiverUID string  `json:"receiver_uid" validate:"required"`
}

// initiatePaymentHandler godoc
//
//	@Summary		Initiates a settlement payment
//	@Description	Creates a CREATED transaction snapshotting the receiver's payment address and returns the intent payload for a UPI app
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		InitiatePaymentPayload	true	"Payment details"
//	@Success		201		{object}	settlement.Intent		"Transaction created"
//	@Failure		400		{object}	error
//	@Failure		404		{object}	error	"Receiver not found"
//	@Failure		412		{object}	error	"Receiver has no linked VPA"
//	@Security		ApiKeyAuth
//	@Router			/payments/initiate [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload InitiatePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	intent, err := app.settlement.Initiate(r.Context(), user.UID, payload.ExpenseID, payload.Amount, payload.ReceiverUID)
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrReceiverNotFound):
			app.notFoundResponse(w, r, err)
		case errors.Is(err, settlement.ErrNoLinkedVPA):
			app.preconditionFailedResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, intent); err != nil {
		app.internalServerError(w, r, err)
	}
}

type WebhookPayload struct {
	MerchantTransactionID string `json:"merchantTransactionId"`
	ProviderReferenceID   string `json:"providerReferenceId"`
	Status                string `json:"status"`
}

// paymentWebhookHandler receives the PSP's asynchronous status
// callbacks. Status codes are the whole contract here: 2xx acknowledges,
// 4xx means "do not retry", 5xx means "retry me". The payload is only
// trusted after its HMAC signature checks out against the shared secret.
func (app *application) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 65536))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	if !app.validWebhookSignature(body, r.Header.Get("X-Webhook-Signature")) {
		app.logger.Warnw("webhook signature mismatch", "remote", r.RemoteAddr)
		writeJSONError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid webhook payload: %v", err))
		return
	}
	if payload.MerchantTransactionID == "" || payload.Status == "" {
		writeJSONError(w, http.StatusBadRequest, "merchantTransactionId and status are required")
		return
	}

	err = app.settlement.Reconcile(r.Context(), settlement.Callback{
		MerchantTransactionID: payload.MerchantTransactionID,
		ProviderReferenceID:   payload.ProviderReferenceID,
		Status:                payload.Status,
	})
	if err != nil {
		// 5xx on everything, including unknown txn ids: the PSP's retry
		// policy re-delivers, and reconciliation is idempotent.
		app.logger.Errorw("reconciliation failed",
			"txn_id", payload.MerchantTransactionID, "status", payload.Status, "error", err.Error())
		writeJSONError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validWebhookSignature checks the hex HMAC-SHA256 of the raw body.
func (app *application) validWebhookSignature(body []byte, signature string) bool {
	if signature == "" || app.config.webhook.secret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(app.config.webhook.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// listPaymentsHandler godoc
//
//	@Summary		Lists the caller's payment attempts
//	@Tags			payments
//	@Produce		json
//	@Param			limit	query		int	false	"Items per page"
//	@Param			page	query		int	false	"Page number"
//	@Success		200		{object}	map[string]any
//	@Security		ApiKeyAuth
//	@Router			/payments [get]
func (app *application) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	p := params.ParsePagination(r.URL.Query())

	txns, total, err := app.txnList.ListByPayer(r.Context(), user.UID, p.Limit, p.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	p.ComputeMeta(total)

	resp := map[string]any{
		"transactions": txns,
		"pagination":   p,
	}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}
