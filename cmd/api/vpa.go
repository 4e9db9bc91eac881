package main

import (
	"errors"
	"net/http"

	"sliceit/internal/domain/users"
)

type VerifyVPAPayload struct {
	VPA string `json:"vpa" validate:"required"`
}

// verifyVPAHandler godoc
//
//	@Summary		Verifies a payment address
//	@Description	Resolves a VPA to an account holder name through the external verification service, or a syntactic check when credentials are absent
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		VerifyVPAPayload	true	"Address to verify"
//	@Success		200		{object}	upi.VerifyResult
//	@Failure		400		{object}	error
//	@Failure		500		{object}	error	"Verification service failure"
//	@Security		ApiKeyAuth
//	@Router			/payments/verify-vpa [post]
func (app *application) verifyVPAHandler(w http.ResponseWriter, r *http.Request) {
	var payload VerifyVPAPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	result, err := app.verifier.Verify(r.Context(), payload.VPA)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, result); err != nil {
		app.internalServerError(w, r, err)
	}
}

type LinkVPAPayload struct {
	VPA string `json:"vpa" validate:"required,vpa"`
}

// linkVPAHandler godoc
//
//	@Summary		Links a payment address to the caller's profile
//	@Description	Future settlements to this user snapshot the linked address; in-flight transactions are unaffected
//	@Tags			users
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	LinkVPAPayload	true	"Address to link"
//	@Success		204
//	@Failure		400	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/users/vpa [put]
func (app *application) linkVPAHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)

	var payload LinkVPAPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := app.users.SetVPA(r.Context(), user.UID, payload.VPA); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
