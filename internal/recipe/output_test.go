package recipe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "frago/internal/errors"
)

func TestHandleOutput_Stdout(t *testing.T) {
	assert.NoError(t, HandleOutput(map[string]interface{}{"ok": true}, "stdout", nil))
}

func TestHandleOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "result.json")
	data := map[string]interface{}{"ok": true, "count": float64(3)}

	require.NoError(t, HandleOutput(data, "file", map[string]string{"path": path}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, data, got)
}

func TestHandleOutput_File_MissingPath(t *testing.T) {
	err := HandleOutput(map[string]interface{}{}, "file", nil)
	assert.True(t, ferrors.Is(err, ferrors.KindOutputTargetError))
}

func TestHandleOutput_InvalidTarget(t *testing.T) {
	err := HandleOutput(map[string]interface{}{}, "carrier-pigeon", nil)
	assert.True(t, ferrors.Is(err, ferrors.KindOutputTargetError))
}
