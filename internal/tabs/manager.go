// Package tabs implements origin-based tab routing with LRU eviction: reuse
// an existing tab for a URL's origin when one is tracked, otherwise open a
// new tab, evicting the least-recently-used tracked tab first if already at
// capacity. State persists to disk so routing decisions survive across CLI
// invocations.
package tabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"frago/internal/cdp"
	ferrors "frago/internal/errors"
	"frago/internal/logging"
)

// MaxTabs bounds how many tabs the manager tracks before it starts evicting
// the least recently used one to make room for a new origin.
const MaxTabs = 20

const stateSchemaVersion = "1.0"

// unroutableSchemes names URL schemes that never map to a stable origin a
// tab can be reused for.
var unroutableSchemes = map[string]bool{
	"about": true, "chrome": true, "chrome-extension": true,
	"data": true, "blob": true, "javascript": true,
}

var standardPorts = map[string]string{"http": "80", "https": "443"}

// TabEntry is a tracked tab's routing state.
type TabEntry struct {
	TabID        string    `json:"tab_id"`
	Origin       string    `json:"origin"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e *TabEntry) touch() { e.LastActivity = time.Now() }

type diskState struct {
	SchemaVersion string              `json:"schema_version"`
	Port          int                 `json:"port"`
	Tabs          map[string]TabEntry `json:"tabs"`
}

// Manager tracks tabs for one Chrome instance (identified by host:port) and
// routes URLs to them by origin.
type Manager struct {
	host      string
	port      int
	stateFile string

	mu    sync.Mutex
	state map[string]*TabEntry
	// order tracks tab ids from least- to most-recently-used so eviction
	// doesn't need a full scan of state. It is capped at MaxTabs with no
	// eviction callback: if it drops an id on its own (e.g. when Reconcile
	// adopts more than MaxTabs tabs), oldestTrackedLocked falls back to a
	// LastActivity scan of state.
	order *lru.Cache[string, struct{}]
}

// NewManager creates a Manager for host:port, loading any persisted state
// for that same endpoint from stateFile.
func NewManager(host string, port int, stateFile string) *Manager {
	cache, _ := lru.New[string, struct{}](MaxTabs)
	m := &Manager{host: host, port: port, stateFile: stateFile, state: map[string]*TabEntry{}, order: cache}
	m.loadState()
	return m
}

// DefaultStateFile returns ~/.frago/chrome/tab_state.json.
func DefaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".frago", "chrome", "tab_state.json")
}

// ExtractOrigin returns "scheme://host[:port]" for a routable URL, or "" when
// the URL's scheme can't be routed (about:, chrome:, data:, etc) or the URL
// fails to parse. Port is included only when it differs from the scheme's
// standard port.
func ExtractOrigin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	scheme := parsed.Scheme
	if scheme == "" || unroutableSchemes[scheme] {
		return ""
	}
	host := parsed.Hostname()
	if host == "" {
		return ""
	}
	port := parsed.Port()
	if port != "" && port != standardPorts[scheme] {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

// IsRoutableURL reports whether ExtractOrigin would return a non-empty
// origin for rawURL.
func IsRoutableURL(rawURL string) bool {
	return ExtractOrigin(rawURL) != ""
}

func (m *Manager) loadState() {
	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		return
	}
	var ds diskState
	if err := json.Unmarshal(data, &ds); err != nil {
		logging.TabLogger.Debug("failed to parse tab state, starting fresh: %v", err)
		return
	}
	if ds.Port != m.port {
		return
	}
	ordered := make([]TabEntry, 0, len(ds.Tabs))
	for _, entry := range ds.Tabs {
		ordered = append(ordered, entry)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].LastActivity.Before(ordered[j].LastActivity) })

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range ordered {
		e := entry
		m.state[e.TabID] = &e
		m.order.Add(e.TabID, struct{}{})
	}
}

func (m *Manager) saveState() {
	m.mu.Lock()
	snapshot := make(map[string]TabEntry, len(m.state))
	for id, e := range m.state {
		snapshot[id] = *e
	}
	m.mu.Unlock()

	ds := diskState{SchemaVersion: stateSchemaVersion, Port: m.port, Tabs: snapshot}
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.stateFile), 0o755); err != nil {
		logging.TabLogger.Warn("failed to create tab state directory: %v", err)
		return
	}
	if err := os.WriteFile(m.stateFile, data, 0o644); err != nil {
		logging.TabLogger.Warn("failed to write tab state: %v", err)
	}
}

// liveTarget mirrors the subset of Chrome's /json/list entries tabs needs.
type liveTarget struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (m *Manager) getLiveTabs(ctx context.Context) []liveTarget {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"http://"+m.host+":"+itoa(m.port)+"/json/list", nil)
	if err != nil {
		return nil
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var all []liveTarget
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil
	}
	pages := all[:0]
	for _, t := range all {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages
}

// Reconcile syncs persisted state with Chrome's actual open tabs: stale
// entries are dropped, untracked live tabs are adopted, and URL/title are
// refreshed for tabs that changed.
func (m *Manager) Reconcile(ctx context.Context) {
	live := m.getLiveTabs(ctx)
	if len(live) == 0 {
		return
	}
	liveIDs := make(map[string]bool, len(live))
	for _, t := range live {
		liveIDs[t.ID] = true
	}

	m.mu.Lock()
	for id := range m.state {
		if !liveIDs[id] {
			delete(m.state, id)
			m.order.Remove(id)
		}
	}
	now := time.Now()
	for _, t := range live {
		origin := ExtractOrigin(t.URL)
		if entry, ok := m.state[t.ID]; ok {
			entry.URL = t.URL
			entry.Title = t.Title
			if origin != "" {
				entry.Origin = origin
			}
		} else {
			m.state[t.ID] = &TabEntry{
				TabID: t.ID, Origin: origin, URL: t.URL, Title: t.Title,
				LastActivity: now, CreatedAt: now,
			}
			m.order.Add(t.ID, struct{}{})
		}
	}
	m.mu.Unlock()
	m.saveState()
}

// FindTabByOrigin returns the most recently active tracked tab whose origin
// matches, or nil if none is tracked.
func (m *Manager) FindTabByOrigin(origin string) *TabEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *TabEntry
	for _, e := range m.state {
		if e.Origin != origin {
			continue
		}
		if best == nil || e.LastActivity.After(best.LastActivity) {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	copy := *best
	return &copy
}

// GetOrCreateTab is the main routing entry point: it returns the target id
// to use for url, reusing a same-origin tab, evicting the LRU tab if at
// capacity, or opening a new tab. Unroutable URLs (about:blank, chrome://,
// data:, ...) bypass routing entirely and use whatever tab is currently
// open.
func (m *Manager) GetOrCreateTab(ctx context.Context, session *cdp.Session, rawURL string) (string, error) {
	origin := ExtractOrigin(rawURL)
	if origin == "" {
		live := m.getLiveTabs(ctx)
		if len(live) == 0 {
			return "", ferrors.E(ferrors.KindTabNotFound, "tabs.GetOrCreateTab", nil)
		}
		return live[0].ID, nil
	}

	if existing := m.FindTabByOrigin(origin); existing != nil {
		m.mu.Lock()
		if e, ok := m.state[existing.TabID]; ok {
			e.touch()
			m.order.Add(e.TabID, struct{}{})
		}
		m.mu.Unlock()
		_ = session.Target().ActivateTarget(ctx, existing.TabID)
		m.saveState()
		return existing.TabID, nil
	}

	m.mu.Lock()
	atCapacity := len(m.state) >= MaxTabs
	m.mu.Unlock()
	if atCapacity {
		m.evictLRU(ctx, session)
	}

	targetID, err := session.Target().CreateTarget(ctx, rawURL, 0, 0)
	if err != nil {
		return "", err
	}
	now := time.Now()
	m.mu.Lock()
	m.state[targetID] = &TabEntry{TabID: targetID, Origin: origin, URL: rawURL, LastActivity: now, CreatedAt: now}
	m.order.Add(targetID, struct{}{})
	m.mu.Unlock()
	m.saveState()
	return targetID, nil
}

func (m *Manager) evictLRU(ctx context.Context, session *cdp.Session) {
	m.mu.Lock()
	victimID, ok := m.oldestTrackedLocked()
	m.mu.Unlock()
	if !ok {
		return
	}

	if _, err := session.Target().CloseTarget(ctx, victimID); err != nil {
		logging.TabLogger.Debug("failed to close LRU tab %s: %v", victimID, err)
	}
	m.mu.Lock()
	delete(m.state, victimID)
	m.order.Remove(victimID)
	m.mu.Unlock()
	m.saveState()
}

// oldestTrackedLocked returns the least-recently-used tab id still present
// in state, preferring the LRU cache's ordering and falling back to a scan
// by LastActivity if the cache and state have drifted apart. Caller must
// hold m.mu.
func (m *Manager) oldestTrackedLocked() (string, bool) {
	for {
		id, _, ok := m.order.GetOldest()
		if !ok {
			break
		}
		if _, tracked := m.state[id]; tracked {
			return id, true
		}
		m.order.Remove(id)
	}

	var oldest *TabEntry
	for _, e := range m.state {
		if oldest == nil || e.LastActivity.Before(oldest.LastActivity) {
			oldest = e
		}
	}
	if oldest == nil {
		return "", false
	}
	return oldest.TabID, true
}

// TrackTab records or updates a tab's routing state directly, without going
// through GetOrCreateTab — used when a tab was opened by means other than
// the manager (e.g. Chrome started with an initial URL).
func (m *Manager) TrackTab(tabID, url, title string) {
	origin := ExtractOrigin(url)
	now := time.Now()
	m.mu.Lock()
	if e, ok := m.state[tabID]; ok {
		e.URL = url
		if title != "" {
			e.Title = title
		}
		if origin != "" {
			e.Origin = origin
		}
		e.touch()
	} else {
		m.state[tabID] = &TabEntry{TabID: tabID, Origin: origin, URL: url, Title: title, LastActivity: now, CreatedAt: now}
	}
	m.order.Add(tabID, struct{}{})
	m.mu.Unlock()
	m.saveState()
}

// TouchTab refreshes a tracked tab's last-activity time.
func (m *Manager) TouchTab(tabID string) {
	m.mu.Lock()
	if e, ok := m.state[tabID]; ok {
		e.touch()
		m.order.Add(tabID, struct{}{})
	}
	m.mu.Unlock()
	m.saveState()
}

// UntrackTab removes a tab from tracked state.
func (m *Manager) UntrackTab(tabID string) {
	m.mu.Lock()
	delete(m.state, tabID)
	m.order.Remove(tabID)
	m.mu.Unlock()
	m.saveState()
}

// GetTrackedTabs returns all tracked tabs ordered by most-recently-active
// first.
func (m *Manager) GetTrackedTabs() []TabEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TabEntry, 0, len(m.state))
	for _, e := range m.state {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out
}

// GetTabCount returns the number of tracked tabs.
func (m *Manager) GetTabCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state)
}

// ClearState discards all tracked tabs, both in memory and on disk.
func (m *Manager) ClearState() {
	m.mu.Lock()
	m.state = map[string]*TabEntry{}
	m.order.Purge()
	m.mu.Unlock()
	_ = os.Remove(m.stateFile)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
