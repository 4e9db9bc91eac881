package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderGroupInviteTemplate(t *testing.T) {
	subject, body, err := renderTemplate(GroupInviteTemplate, struct {
		Subject     string
		InviterName string
		Lines       []string
	}{
		Subject:     "Join Goa Trip on SliceIt",
		InviterName: "Alice Rao",
		Lines:       []string{"We use SliceIt to split trip expenses.", "", "See you there!"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Join Goa Trip on SliceIt", subject)
	assert.Contains(t, body, "Alice Rao invited you")
	assert.Contains(t, body, "<p>We use SliceIt to split trip expenses.</p>")
	assert.Contains(t, body, "<br/>")
}

func TestRenderTemplateEscapesHTML(t *testing.T) {
	_, body, err := renderTemplate(GroupInviteTemplate, struct {
		Subject     string
		InviterName string
		Lines       []string
	}{
		Subject:     "hi",
		InviterName: "<script>alert(1)</script>",
		Lines:       []string{"<b>bold</b>"},
	})
	require.NoError(t, err)

	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;script&gt;")
	assert.Contains(t, body, "&lt;b&gt;bold&lt;/b&gt;")
}
