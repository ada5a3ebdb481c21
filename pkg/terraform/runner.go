// Package terraform invokes the terraform (or OpenTofu) binary for one
// configuration directory at a time.
//
// The runner owns binary discovery, the version precondition check, init and
// operation invocation with a merged environment, and bounded retries on
// transient network failures. Classifying and scheduling runs is the
// engine's job; the runner only reports what one invocation did.
package terraform

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tfgraph-io/tfgraph/internal/logging"
	"github.com/tfgraph-io/tfgraph/pkg/errors"
)

// Operation is a tool operation the engine knows how to classify.
type Operation string

const (
	OperationPlan  Operation = "plan"
	OperationApply Operation = "apply"
)

// ParseOperation validates a user-supplied operation name.
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OperationPlan, OperationApply:
		return Operation(s), nil
	}
	return "", errors.ConfigError(fmt.Sprintf("unsupported operation %q (expected plan or apply)", s), nil)
}

// MinimumVersion is the oldest tool release the engine schedules work for.
const MinimumVersion = "1.0.0"

// Runner invokes the tool binary. A Runner is safe for concurrent use; each
// invocation is an independent process.
type Runner struct {
	binaryPath string
	binaryName string
	log        *slog.Logger

	maxRetries    int
	retryDeadline time.Duration
	sleep         func(time.Duration)
}

// NewRunner locates the tool binary. When the preferred binary is absent the
// runner falls back to the other of terraform/tofu, so either toolchain
// satisfies the contract.
func NewRunner(binaryName string) (*Runner, error) {
	if binaryName == "" {
		binaryName = "terraform"
	}

	binaryPath, err := exec.LookPath(binaryName)
	if err != nil {
		alt := "tofu"
		if filepath.Base(binaryName) == "tofu" {
			alt = "terraform"
		}
		if altPath, altErr := exec.LookPath(alt); altErr == nil {
			binaryPath, binaryName, err = altPath, alt, nil
		}
		if err != nil {
			return nil, errors.ConfigError("neither terraform nor tofu binary found", err)
		}
	}

	return &Runner{
		binaryPath:    binaryPath,
		binaryName:    binaryName,
		log:           logging.New("terraform"),
		maxRetries:    MaxRetries,
		retryDeadline: retryDeadline,
		sleep:         time.Sleep,
	}, nil
}

// BinaryName returns the resolved binary name (terraform or tofu).
func (r *Runner) BinaryName() string {
	return r.binaryName
}

// CheckVersion verifies the tool meets the minimum supported version. It is
// a startup precondition: entry points call it once before any scheduling.
func (r *Runner) CheckVersion(ctx context.Context) error {
	res, err := r.exec(ctx, "", []string{"version", "-json"}, nil)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return errors.ConfigError(fmt.Sprintf("%s version check failed", r.binaryName),
			fmt.Errorf("exit %d: %s", res.ExitCode, res.Output))
	}

	var v struct {
		TerraformVersion string `json:"terraform_version"`
	}
	if err := json.Unmarshal(res.Output, &v); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse %s version output", r.binaryName), err)
	}
	if compareVersions(v.TerraformVersion, MinimumVersion) < 0 {
		return errors.ConfigError(fmt.Sprintf("%s %s is older than the minimum supported version %s",
			r.binaryName, v.TerraformVersion, MinimumVersion), nil)
	}

	r.log.Debug("version check passed", "binary", r.binaryName, "version", v.TerraformVersion)
	return nil
}

// RunRequest describes one directory invocation.
type RunRequest struct {
	// Dir is the configuration directory the tool runs in.
	Dir string

	Operation Operation

	// Env is merged over the inherited process environment.
	Env map[string]string

	// ConfigureBackend false runs init with -backend=false.
	ConfigureBackend bool

	// Colors enables ANSI color output. Off by default so captured output
	// stays machine-readable.
	Colors bool

	// PlanFile, for plan operations, saves the binary plan artifact at the
	// given path.
	PlanFile string
}

// RunResult is the outcome of one directory invocation.
type RunResult struct {
	ExitCode int

	// Output is the combined stdout/stderr stream, init included.
	Output []byte

	// HasDiff reports that a plan found pending changes (detailed exit code
	// 2) or an apply changed resources. Plans with a diff are successes.
	HasDiff bool

	// Attempts counts invocations of the operation, retries included.
	Attempts int
}

// Failed reports whether the run is a tool failure. A plan exiting with
// status 2 signals pending changes, never failure.
func (res *RunResult) Failed() bool {
	return res.ExitCode != 0 && !res.HasDiff
}

// RunOperation initializes the directory and runs the requested operation,
// retrying transient network failures. Non-zero exits are reported through
// the result, not an error; errors mean the tool could not be invoked.
func (r *Runner) RunOperation(ctx context.Context, req RunRequest) (*RunResult, error) {
	initArgs := []string{"init", "-input=false"}
	if !req.ConfigureBackend {
		initArgs = append(initArgs, "-backend=false")
	}
	if !req.Colors {
		initArgs = append(initArgs, "-no-color")
	}

	initRes, err := r.runWithRetry(ctx, req.Dir, initArgs, req.Env, exitZero)
	if err != nil {
		return nil, err
	}
	if initRes.ExitCode != 0 {
		return initRes, nil
	}

	var args []string
	var ok func(int) bool
	switch req.Operation {
	case OperationPlan:
		args = []string{"plan", "-input=false", "-detailed-exitcode"}
		if req.PlanFile != "" {
			args = append(args, "-out="+req.PlanFile)
		}
		ok = func(code int) bool { return code == 0 || code == planDiffExitCode }
	case OperationApply:
		args = []string{"apply", "-input=false", "-auto-approve"}
		ok = exitZero
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported operation %q", req.Operation), nil)
	}
	if !req.Colors {
		args = append(args, "-no-color")
	}

	res, err := r.runWithRetry(ctx, req.Dir, args, req.Env, ok)
	if err != nil {
		return nil, err
	}

	res.Output = append(initRes.Output, res.Output...)
	res.HasDiff = DetectDiff(req.Operation, res.ExitCode, res.Output)
	return res, nil
}

// planDiffExitCode is what plan -detailed-exitcode returns when the plan
// succeeds and contains changes.
const planDiffExitCode = 2

func exitZero(code int) bool { return code == 0 }

// runWithRetry runs one command, retrying while the output matches a known
// transient failure, up to the attempt and deadline budget. The last result
// is returned even when the budget runs out; exhaustion is not a distinct
// failure mode.
func (r *Runner) runWithRetry(ctx context.Context, dir string, args []string, env map[string]string, succeeded func(int) bool) (*RunResult, error) {
	start := time.Now()
	for attempt := 1; ; attempt++ {
		res, err := r.exec(ctx, dir, args, env)
		if err != nil {
			return nil, err
		}
		res.Attempts = attempt

		if succeeded(res.ExitCode) {
			return res, nil
		}
		transient := RetriableErrors(res.Output)
		if len(transient) == 0 || attempt >= r.maxRetries {
			return res, nil
		}
		if time.Since(start) >= r.retryDeadline {
			r.log.Warn("retry deadline exhausted", "dir", dir, "attempts", attempt)
			return res, nil
		}

		r.log.Warn("retrying after transient errors",
			"dir", dir, "attempt", attempt, "errors", transient)
		r.sleep(backoff(attempt))
	}
}

// exec runs the binary once with the merged environment, capturing stdout
// and stderr into one stream the way operators read tool output.
func (r *Runner) exec(ctx context.Context, dir string, args []string, env map[string]string) (*RunResult, error) {
	cmd := exec.CommandContext(ctx, r.binaryPath, args...)
	cmd.Dir = dir
	cmd.Env = mergedEnv(env)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return nil, errors.Wrap(errors.ErrCodeToolFailure,
				fmt.Sprintf("failed to invoke %s in %s", r.binaryName, dir), err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &RunResult{ExitCode: exitCode, Output: output.Bytes()}, nil
}

// mergedEnv layers the per-directory variables over the inherited process
// environment, with deterministic ordering. Later entries win on duplicate
// keys, so declared variables shadow inherited ones.
func mergedEnv(env map[string]string) []string {
	merged := os.Environ()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+env[k])
	}
	merged = append(merged, "TF_INPUT=0", "TF_IN_AUTOMATION=1")
	return merged
}

// compareVersions compares dotted release versions, ignoring a leading v
// and any pre-release suffix. Returns -1, 0, or 1.
func compareVersions(a, b string) int {
	pa, pb := versionParts(a), versionParts(b)
	for i := 0; i < 3; i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionParts(v string) [3]int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		v = v[:idx]
	}
	var parts [3]int
	for i, piece := range strings.SplitN(v, ".", 3) {
		n, err := strconv.Atoi(piece)
		if err != nil {
			break
		}
		parts[i] = n
	}
	return parts
}
