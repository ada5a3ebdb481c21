package terraform

import (
	"regexp"
	"strings"
)

// DetectDiff classifies whether one invocation produced changes. For plans
// the detailed exit code is authoritative: 2 means a successful plan with
// pending changes. For applies the resource change summary line is parsed
// from the output.
func DetectDiff(op Operation, exitCode int, output []byte) bool {
	if op == OperationPlan {
		return exitCode == planDiffExitCode
	}
	if exitCode != 0 {
		return false
	}
	return applyChangedResources(output)
}

var applySummaryPattern = regexp.MustCompile(
	`(?m)^Apply complete! Resources: (\d+) added, (\d+) changed, (\d+) destroyed\.`)

func applyChangedResources(output []byte) bool {
	m := applySummaryPattern.FindSubmatch(stripANSI(output))
	if m == nil {
		return false
	}
	for _, count := range m[1:] {
		if string(count) != "0" {
			return true
		}
	}
	return false
}

// iamResourcePattern matches resource addresses whose type belongs to an
// identity/privilege family, e.g. aws_iam_role.deploy or
// module.accounts.aws_iam_policy.admin.
var iamResourcePattern = regexp.MustCompile(`(?:^|\.)[a-z0-9]+_iam_[a-z0-9_]+\.`)

// planActionPattern matches the per-resource action headers a plan prints,
// e.g. "  # aws_iam_role.deploy will be created".
var planActionPattern = regexp.MustCompile(
	`^\s*#\s+(\S+)\s+(?:will be|must be|has been)\s+`)

// HasIAMChanges reports whether plan output contains pending changes to
// IAM-family resources. The scan reads the human-readable action headers, so
// it works on captured plan output without the binary artifact.
func HasIAMChanges(output []byte) bool {
	for _, line := range strings.Split(string(stripANSI(output)), "\n") {
		m := planActionPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if iamResourcePattern.MatchString(m[1]) {
			return true
		}
	}
	return false
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes color escape sequences so scans behave identically with
// and without -no-color.
func stripANSI(output []byte) []byte {
	return ansiPattern.ReplaceAll(output, nil)
}
