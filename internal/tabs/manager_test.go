package tabs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractOrigin(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://example.com/path?x=1", "https://example.com"},
		{"https://example.com:443/path", "https://example.com"},
		{"http://example.com:80/", "http://example.com"},
		{"http://example.com:8080/", "http://example.com:8080"},
		{"https://sub.example.com:8443/a/b", "https://sub.example.com:8443"},
		{"about:blank", ""},
		{"chrome://settings", ""},
		{"chrome-extension://abcd/page.html", ""},
		{"data:text/html,<h1>hi</h1>", ""},
		{"javascript:void(0)", ""},
		{"not a url", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ExtractOrigin(c.url), "ExtractOrigin(%q)", c.url)
	}
}

func TestIsRoutableURL(t *testing.T) {
	assert.True(t, IsRoutableURL("https://example.com"))
	assert.False(t, IsRoutableURL("about:blank"))
}

func TestManager_TrackAndFindByOrigin(t *testing.T) {
	m := NewManager("127.0.0.1", 9222, filepath.Join(t.TempDir(), "state.json"))

	m.TrackTab("tab-1", "https://example.com/page", "Example")
	found := m.FindTabByOrigin("https://example.com")
	require.NotNil(t, found)
	assert.Equal(t, "tab-1", found.TabID)

	assert.Nil(t, m.FindTabByOrigin("https://other.com"))
}

func TestManager_MostRecentWinsOnOriginCollision(t *testing.T) {
	m := NewManager("127.0.0.1", 9222, filepath.Join(t.TempDir(), "state.json"))

	m.TrackTab("tab-old", "https://example.com/a", "")
	m.TrackTab("tab-new", "https://example.com/b", "")
	m.TouchTab("tab-new")

	found := m.FindTabByOrigin("https://example.com")
	require.NotNil(t, found)
	assert.Equal(t, "tab-new", found.TabID)
}

func TestManager_UntrackAndCount(t *testing.T) {
	m := NewManager("127.0.0.1", 9222, filepath.Join(t.TempDir(), "state.json"))
	m.TrackTab("tab-1", "https://example.com", "")
	m.TrackTab("tab-2", "https://other.com", "")
	require.Equal(t, 2, m.GetTabCount())
	m.UntrackTab("tab-1")
	require.Equal(t, 1, m.GetTabCount())
}

func TestManager_PersistsAcrossInstances(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	m1 := NewManager("127.0.0.1", 9222, stateFile)
	m1.TrackTab("tab-1", "https://example.com", "Example")

	m2 := NewManager("127.0.0.1", 9222, stateFile)
	require.Equal(t, 1, m2.GetTabCount(), "expected persisted state to reload")
	found := m2.FindTabByOrigin("https://example.com")
	require.NotNil(t, found)
	assert.Equal(t, "tab-1", found.TabID)
}

func TestManager_IgnoresStateFromDifferentPort(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	m1 := NewManager("127.0.0.1", 9222, stateFile)
	m1.TrackTab("tab-1", "https://example.com", "")

	m2 := NewManager("127.0.0.1", 9333, stateFile)
	assert.Equal(t, 0, m2.GetTabCount(), "expected no carryover across different ports")
}

func TestManager_ClearState(t *testing.T) {
	stateFile := filepath.Join(t.TempDir(), "state.json")
	m := NewManager("127.0.0.1", 9222, stateFile)
	m.TrackTab("tab-1", "https://example.com", "")
	m.ClearState()
	assert.Equal(t, 0, m.GetTabCount())
}

func TestManager_GetTrackedTabsOrdering(t *testing.T) {
	m := NewManager("127.0.0.1", 9222, filepath.Join(t.TempDir(), "state.json"))
	m.TrackTab("tab-1", "https://a.com", "")
	m.TrackTab("tab-2", "https://b.com", "")
	m.TouchTab("tab-1")

	tabs := m.GetTrackedTabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, "tab-1", tabs[0].TabID, "expected most recently touched tab first")
}
