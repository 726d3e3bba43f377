package notify

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/billmal071/archivedl/internal/config"
)

type sent struct{ title, message, kind string }

func capture(t *testing.T, enabled bool) *[]sent {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	viper.Reset()
	require.NoError(t, config.Init(""))
	viper.Set("downloads.notifications", enabled)

	var got []sent
	orig := deliver
	deliver = func(title, message, kind string) {
		got = append(got, sent{title, message, kind})
	}
	t.Cleanup(func() {
		deliver = orig
		viper.Reset()
	})
	return &got
}

func TestRipNotifications(t *testing.T) {
	got := capture(t, true)

	RipComplete("Goodnight Moon", 32)
	RipFailed("Goodnight Moon", "loan closed")
	RipFailed("Goodnight Moon", "")
	StitchComplete("/out/book.pdf")

	assert.Equal(t, []sent{
		{"Rip Complete", "Goodnight Moon (32 pages)", TypeSuccess},
		{"Rip Failed", "Goodnight Moon: loan closed", TypeError},
		{"Rip Failed", "Goodnight Moon", TypeError},
		{"PDF Ready", "/out/book.pdf", TypeInfo},
	}, *got)
}

func TestNotificationsDisabled(t *testing.T) {
	got := capture(t, false)
	RipComplete("x", 1)
	assert.Empty(t, *got)
}

func TestEscaping(t *testing.T) {
	assert.Equal(t, `say \"hi\" \\ bye`, escapeAppleScript(`say "hi" \ bye`))
	assert.Equal(t, "&lt;b&gt; &amp; &quot;q&quot; &apos;", escapeXML(`<b> & "q" '`))
}
