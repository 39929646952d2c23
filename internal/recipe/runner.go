package recipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"frago/internal/cdp"
	ferrors "frago/internal/errors"
	"frago/internal/env"
	"frago/internal/external/subprocess"
	"frago/internal/metrics"
)

const maxRecipeOutputBytes = 10 * 1024 * 1024

// ExecutionError carries the detail of a failed recipe run: which recipe,
// which runtime, and the process's exit code and captured output.
type ExecutionError struct {
	RecipeName string
	Runtime    string
	ExitCode   int
	Stdout     string
	Stderr     string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("recipe '%s' execution failed (exit code: %d)", e.RecipeName, e.ExitCode)
	if e.Stderr != "" {
		tail := e.Stderr
		if len(tail) > 200 {
			tail = tail[:200]
		}
		msg += fmt.Sprintf("\nerror: %s", tail)
	}
	return msg
}

func execErr(op string, e *ExecutionError) error {
	return ferrors.E(ferrors.KindRecipeExecutionError, op, e)
}

// Result is what a recipe run produces.
type Result struct {
	Success       bool
	Data          map[string]interface{}
	ExecutionTime time.Duration
	RecipeName    string
	Runtime       string
}

// Runner dispatches a recipe to the execution path matching its declared
// runtime and resolves its environment beforehand.
type Runner struct {
	Registry  *Registry
	EnvLoader *env.Loader
}

// NewRunner builds a Runner over registry, resolving project-level .env
// files relative to projectRoot.
func NewRunner(registry *Registry, projectRoot string) *Runner {
	if registry == nil {
		registry = NewRegistry()
		registry.Scan()
	}
	return &Runner{Registry: registry, EnvLoader: env.NewLoader(projectRoot)}
}

// Run looks up, validates, and executes the recipe named name. session is
// only consulted for chrome-js recipes, which run via the CDP Runtime
// domain rather than a subprocess.
func (rn *Runner) Run(
	ctx context.Context,
	session *cdp.Session,
	name string,
	params map[string]interface{},
	envOverrides map[string]string,
	workflowContext *env.WorkflowContext,
	source string,
) (Result, error) {
	if params == nil {
		params = map[string]interface{}{}
	}

	start := time.Now()
	runtime := "unknown"
	outcome := "success"
	defer func() {
		metrics.ObserveRecipeExecution(runtime, outcome, time.Since(start).Seconds())
	}()

	recipe, err := rn.Registry.Find(name, source)
	if err != nil {
		outcome = "not_found"
		return Result{}, err
	}
	runtime = recipe.Metadata.Runtime

	if err := ValidateParams(recipe.Metadata, params); err != nil {
		outcome = "validation_error"
		return Result{}, err
	}

	resolvedEnv, err := rn.EnvLoader.ResolveForRecipe(toVarDefinitions(recipe.Metadata.Env), envOverrides, workflowContext)
	if err != nil {
		outcome = "validation_error"
		return Result{}, ferrors.E(ferrors.KindRecipeValidationError, "recipe.Run", err)
	}

	var data map[string]interface{}
	switch recipe.Metadata.Runtime {
	case "chrome-js":
		data, err = rn.runChromeJS(ctx, session, name, recipe.ScriptPath, params)
	case "python":
		data, err = rn.runPython(ctx, name, recipe.ScriptPath, params, resolvedEnv, recipe.Metadata.SystemPackages)
	case "shell":
		data, err = rn.runShell(ctx, name, recipe.ScriptPath, params, resolvedEnv)
	default:
		err = execErr("recipe.Run", &ExecutionError{RecipeName: name, Runtime: recipe.Metadata.Runtime, ExitCode: -1,
			Stderr: fmt.Sprintf("unsupported runtime type: %s", recipe.Metadata.Runtime)})
	}
	if err != nil {
		outcome = "execution_error"
		return Result{}, err
	}

	return Result{
		Success:       true,
		Data:          data,
		ExecutionTime: time.Since(start),
		RecipeName:    name,
		Runtime:       recipe.Metadata.Runtime,
	}, nil
}

func toVarDefinitions(defs map[string]EnvDef) map[string]env.VarDefinition {
	out := make(map[string]env.VarDefinition, len(defs))
	for name, def := range defs {
		out[name] = env.VarDefinition{Required: def.Required, Default: def.Default, Description: def.Description}
	}
	return out
}

// runChromeJS injects params as window.__FRAGO_PARAMS__ (when present) then
// evaluates the recipe's script source directly over the CDP connection,
// with no subprocess involved. A result that isn't a JSON object is wrapped
// as {"result": <value>}, matching the contract python/shell recipes satisfy
// by returning JSON objects on stdout.
func (rn *Runner) runChromeJS(ctx context.Context, session *cdp.Session, recipeName, scriptPath string, params map[string]interface{}) (map[string]interface{}, error) {
	if session == nil {
		return nil, execErr("recipe.runChromeJS", &ExecutionError{RecipeName: recipeName, Runtime: "chrome-js", ExitCode: -1,
			Stderr: "no active CDP session"})
	}

	if len(params) > 0 {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, execErr("recipe.runChromeJS", &ExecutionError{RecipeName: recipeName, Runtime: "chrome-js", ExitCode: -1,
				Stderr: fmt.Sprintf("failed to encode params: %v", err)})
		}
		injectExpr := fmt.Sprintf("window.__FRAGO_PARAMS__ = %s", paramsJSON)
		if err := session.Runtime().Evaluate(ctx, injectExpr, false, nil); err != nil {
			return nil, execErr("recipe.runChromeJS", &ExecutionError{RecipeName: recipeName, Runtime: "chrome-js", ExitCode: -1,
				Stderr: fmt.Sprintf("param injection failed: %v", err)})
		}
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, execErr("recipe.runChromeJS", &ExecutionError{RecipeName: recipeName, Runtime: "chrome-js", ExitCode: -1,
			Stderr: fmt.Sprintf("cannot read script: %v", err)})
	}

	var value interface{}
	if err := session.Runtime().Evaluate(ctx, string(script), true, &value); err != nil {
		return nil, execErr("recipe.runChromeJS", &ExecutionError{RecipeName: recipeName, Runtime: "chrome-js", ExitCode: -1,
			Stderr: err.Error()})
	}

	if m, ok := value.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{"result": value}, nil
}

// runPython runs a recipe's python script with `uv run` (which honors PEP
// 723 inline dependency declarations), or the system interpreter when the
// recipe needs system packages like dbus that uv's isolated venv lacks.
func (rn *Runner) runPython(ctx context.Context, recipeName, scriptPath string, params map[string]interface{}, envVars map[string]string, useSystemPython bool) (map[string]interface{}, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, execErr("recipe.runPython", &ExecutionError{RecipeName: recipeName, Runtime: "python", ExitCode: -1,
			Stderr: fmt.Sprintf("failed to encode params: %v", err)})
	}

	var cmd string
	var args []string
	if useSystemPython {
		cmd = "/usr/bin/python3"
		args = []string{scriptPath, string(paramsJSON)}
		clean := make(map[string]string, len(envVars))
		for k, v := range envVars {
			if k == "VIRTUAL_ENV" || k == "PYTHONHOME" {
				continue
			}
			clean[k] = v
		}
		envVars = clean
	} else {
		cmd = "uv"
		args = []string{"run", scriptPath, string(paramsJSON)}
	}

	return rn.runSubprocess(ctx, recipeName, "python", cmd, args, envVars, true)
}

// runShell runs a recipe's shell script directly, after checking it carries
// an executable bit.
func (rn *Runner) runShell(ctx context.Context, recipeName, scriptPath string, params map[string]interface{}, envVars map[string]string) (map[string]interface{}, error) {
	info, err := os.Stat(scriptPath)
	if err != nil {
		return nil, execErr("recipe.runShell", &ExecutionError{RecipeName: recipeName, Runtime: "shell", ExitCode: -1,
			Stderr: fmt.Sprintf("script not found: %v", err)})
	}
	if info.Mode()&0o111 == 0 {
		return nil, execErr("recipe.runShell", &ExecutionError{RecipeName: recipeName, Runtime: "shell", ExitCode: -1,
			Stderr: fmt.Sprintf("script is not executable: %s", scriptPath)})
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, execErr("recipe.runShell", &ExecutionError{RecipeName: recipeName, Runtime: "shell", ExitCode: -1,
			Stderr: fmt.Sprintf("failed to encode params: %v", err)})
	}

	return rn.runSubprocess(ctx, recipeName, "shell", scriptPath, []string{string(paramsJSON)}, envVars, true)
}

// runSubprocess spawns cmd/args, captures stdout up to maxRecipeOutputBytes,
// and parses it as JSON — with a jsonrepair second chance for python/shell
// output that's close to valid JSON but not quite (trailing commas, single
// quotes), since those two runtimes are expected to always emit an object.
func (rn *Runner) runSubprocess(ctx context.Context, recipeName, runtime, cmd string, args []string, envVars map[string]string, tryRepair bool) (map[string]interface{}, error) {
	sp := subprocess.New(subprocess.Config{
		Command:   cmd,
		Args:      args,
		Env:       envVars,
		MaxStdout: maxRecipeOutputBytes,
	})

	if err := sp.Start(ctx); err != nil {
		return nil, execErr("recipe.runSubprocess", &ExecutionError{RecipeName: recipeName, Runtime: runtime, ExitCode: -1,
			Stderr: fmt.Sprintf("failed to start: %v", err)})
	}
	waitErr := sp.Wait()

	exitCode := 0
	if waitErr != nil {
		var exitError *exec.ExitError
		if errors.As(waitErr, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			exitCode = -1
		}
	}

	stdout := sp.Stdout()
	if exitCode != 0 {
		return nil, execErr("recipe.runSubprocess", &ExecutionError{
			RecipeName: recipeName, Runtime: runtime, ExitCode: exitCode,
			Stdout: string(stdout), Stderr: sp.StderrTail(),
		})
	}

	if sp.StdoutOverflowed() {
		return nil, execErr("recipe.runSubprocess", &ExecutionError{
			RecipeName: recipeName, Runtime: runtime, ExitCode: -1,
			Stderr: fmt.Sprintf("recipe output too large: %.2fMB (limit: 10MB)", float64(sp.StdoutSize())/1024/1024),
		})
	}

	var data map[string]interface{}
	if err := json.Unmarshal(stdout, &data); err == nil {
		return data, nil
	}

	if tryRepair {
		if repaired, repairErr := jsonrepair.JSONRepair(string(stdout)); repairErr == nil {
			if err := json.Unmarshal([]byte(repaired), &data); err == nil {
				return data, nil
			}
		}
	}

	excerpt := strings.TrimSpace(string(stdout))
	if len(excerpt) > 200 {
		excerpt = excerpt[:200]
	}
	return nil, execErr("recipe.runSubprocess", &ExecutionError{
		RecipeName: recipeName, Runtime: runtime, ExitCode: -1,
		Stderr: fmt.Sprintf("JSON parse failed, output: %s", excerpt),
	})
}
