package mailer

import "embed"

const (
	FromName            = "SliceIt"
	maxRetries          = 3
	GroupInviteTemplate = "group_invite.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}
