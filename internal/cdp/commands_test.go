package cdp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestVisualEffects_EmitScripts checks each helper sends a Runtime.evaluate
// call whose injected script references the selector/text it was given and,
// for Clear, the shared marker attribute used to find prior effects.
func TestVisualEffects_EmitScripts(t *testing.T) {
	var lastExpr string
	fc := newFakeChrome(t, func(method string, params json.RawMessage) (json.RawMessage, *cdpError) {
		if method == "Runtime.evaluate" {
			var body struct {
				Expression string `json:"expression"`
			}
			_ = json.Unmarshal(params, &body)
			lastExpr = body.Expression
		}
		return json.RawMessage(`{}`), nil
	})

	session := NewSession(fc.cfg())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, session.Connect(ctx))
	defer session.Disconnect()

	fx := session.VisualEffects()

	require.NoError(t, fx.Highlight(ctx, "#target", "lime", 2, 0))
	assert.Contains(t, lastExpr, "#target")
	assert.Contains(t, lastExpr, "lime")
	assert.NotContains(t, lastExpr, "setTimeout", "lifetimeMs=0 should not schedule removal")

	require.NoError(t, fx.Pointer(ctx, "#target", "", 500))
	assert.Contains(t, lastExpr, "setTimeout", "lifetimeMs>0 should schedule removal")

	require.NoError(t, fx.Spotlight(ctx, "#target", 0.5, 0))
	assert.Contains(t, lastExpr, "spotlight")

	require.NoError(t, fx.Annotate(ctx, "#target", "click here", "bottom", 0))
	assert.Contains(t, lastExpr, "click here")

	require.NoError(t, fx.Underline(ctx, "#target", "", 0))
	assert.Contains(t, lastExpr, "borderBottom")

	require.NoError(t, fx.Clear(ctx))
	assert.Contains(t, lastExpr, visualEffectsMarker)
}
