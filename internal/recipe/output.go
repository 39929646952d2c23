package recipe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"

	ferrors "frago/internal/errors"
)

// HandleOutput delivers a recipe's result data to one of the three output
// targets spec.md defines: stdout (pretty-printed), file (pretty-printed,
// written to options["path"]), or clipboard (compact, copied via the
// platform clipboard backend).
func HandleOutput(data map[string]interface{}, target string, options map[string]string) error {
	switch target {
	case "stdout":
		return outputToStdout(data)
	case "file":
		return outputToFile(data, options)
	case "clipboard":
		return outputToClipboard(data)
	default:
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.HandleOutput",
			fmt.Errorf("invalid output target: '%s', valid values: stdout, file, clipboard", target))
	}
}

func outputToStdout(data map[string]interface{}) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToStdout", err)
	}
	fmt.Println(string(out))
	return nil
}

func outputToFile(data map[string]interface{}, options map[string]string) error {
	path, ok := options["path"]
	if !ok || path == "" {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToFile",
			fmt.Errorf("the file output target requires a 'path' option"))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToFile", err)
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToFile", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToFile",
			fmt.Errorf("failed to write file: %s - %w", path, err))
	}
	return nil
}

func outputToClipboard(data map[string]interface{}) error {
	out, err := json.Marshal(data)
	if err != nil {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToClipboard", err)
	}
	if err := clipboard.WriteAll(string(out)); err != nil {
		return ferrors.E(ferrors.KindOutputTargetError, "recipe.outputToClipboard", fmt.Errorf(
			"copying to clipboard failed: %w\n\ninstall a clipboard backend:\n  linux: apt install xclip (or xsel)\n  macOS/Windows: no extra install needed", err))
	}
	return nil
}
