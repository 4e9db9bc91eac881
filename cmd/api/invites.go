package main

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"sliceit/internal/mailer"

	"github.com/go-chi/chi/v5"
)

var emailRegexp = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type SendInvitesPayload struct {
	To         []string `json:"to" validate:"required,min=1,max=25"`
	Subject    string   `json:"subject" validate:"required,max=200"`
	Body       string   `json:"body"`
	InviterUID string   `json:"inviter_uid"`
}

type SendInvitesResponse struct {
	OK   bool `json:"ok"`
	Sent int  `json:"sent"`
}

// sendGroupInvitesHandler godoc
//
//	@Summary		Emails group invites
//	@Description	Sends one invite mail per recipient and best-effort marks the invite records as sent
//	@Tags			groups
//	@Accept			json
//	@Produce		json
//	@Param			groupID	path		string				true	"Group ID"
//	@Param			payload	body		SendInvitesPayload	true	"Invite details"
//	@Success		200		{object}	SendInvitesResponse
//	@Failure		400		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/groups/{groupID}/invites [post]
func (app *application) sendGroupInvitesHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	groupID := chi.URLParam(r, "groupID")

	var payload SendInvitesPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	var invalid []string
	for _, email := range payload.To {
		if !emailRegexp.MatchString(email) {
			invalid = append(invalid, email)
		}
	}
	if len(invalid) > 0 {
		app.badRequestResponse(w, r, fmt.Errorf("invalid emails: %s", strings.Join(invalid, ", ")))
		return
	}

	// Not fatal, but worth a trace when the app sends someone else's uid.
	if payload.InviterUID != "" && payload.InviterUID != user.UID {
		app.logger.Warnw("inviter uid mismatch", "inviter_uid", payload.InviterUID, "auth_uid", user.UID)
	}

	vars := struct {
		Subject     string
		InviterName string
		Lines       []string
	}{
		Subject:     payload.Subject,
		InviterName: user.DisplayName(),
		Lines:       strings.Split(payload.Body, "\n"),
	}

	for _, email := range payload.To {
		status, err := app.mailer.Send(mailer.GroupInviteTemplate, "", email, vars)
		if err != nil {
			app.logger.Errorw("error sending invite email", "group_id", groupID, "email", email, "error", err)
			app.internalServerError(w, r, err)
			return
		}
		app.logger.Infow("invite email sent", "group_id", groupID, "email", email, "status_code", status)
	}

	// Best-effort bookkeeping: the mail already went out.
	if err := app.invites.MarkSent(r.Context(), groupID, user.UID, payload.To); err != nil {
		app.logger.Errorw("failed to mark invites sent", "group_id", groupID, "error", err)
	}

	resp := SendInvitesResponse{OK: true, Sent: len(payload.To)}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}
