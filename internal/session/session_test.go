package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThemeToggle(t *testing.T) {
	assert.Equal(t, ThemeDark, ThemeLight.Toggle())
	assert.Equal(t, ThemeLight, ThemeDark.Toggle())
	assert.Equal(t, ThemeLight, ThemeLight.Toggle().Toggle())
}

func TestParseTheme(t *testing.T) {
	theme, err := ParseTheme(" Dark ")
	require.NoError(t, err)
	assert.Equal(t, ThemeDark, theme)

	_, err = ParseTheme("solarized")
	assert.Error(t, err)
}

func TestStateTranscriptOrder(t *testing.T) {
	now := time.Now()
	st := NewState(ThemeLight, now)
	st.Append(NewMessage(SenderUser, "one", now))
	st.Append(NewMessage(SenderBot, "two", now.Add(time.Second)))

	snap := st.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "one", snap.Transcript[0].Text)
	assert.Equal(t, "two", snap.Transcript[1].Text)
	assert.NotEqual(t, snap.Transcript[0].ID, snap.Transcript[1].ID)

	last, ok := snap.Last()
	require.True(t, ok)
	assert.Equal(t, SenderBot, last.Sender)
}

func TestSnapshotIsDetached(t *testing.T) {
	st := NewState(ThemeDark, time.Now())
	st.Append(NewMessage(SenderUser, "hi", time.Now()))
	snap := st.Snapshot()

	st.Append(NewMessage(SenderBot, "later", time.Now()))
	st.Reset()

	assert.Len(t, snap.Transcript, 1)
	assert.Equal(t, 0, st.Len())
}

func TestBackendStatusString(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "online", StatusOnline.String())
	assert.Equal(t, "offline", StatusOffline.String())
}

func TestSnapshotVersionIncreases(t *testing.T) {
	st := NewState(ThemeLight, time.Now())
	first := st.Snapshot()
	second := st.Snapshot()
	assert.Greater(t, second.Version, first.Version)

	id := st.ID
	st.Rotate(time.Now())
	assert.NotEqual(t, id, st.ID)
}
