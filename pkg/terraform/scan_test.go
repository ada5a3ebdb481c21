package terraform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetriableErrors(t *testing.T) {
	output := []byte(`
Error: error reading S3 bucket: RequestLimitExceeded
Error: dial tcp: connection reset by peer
`)
	matches := RetriableErrors(output)
	assert.Equal(t, []string{"RequestLimitExceeded", "connection reset by peer"}, matches)
}

func TestRetriableErrors_CaseInsensitive(t *testing.T) {
	assert.NotEmpty(t, RetriableErrors([]byte("error: THROTTLING on api call")))
}

func TestRetriableErrors_NoMatchForRealFailures(t *testing.T) {
	output := []byte(`Error: Invalid resource type "aws_nonsense"`)
	assert.Empty(t, RetriableErrors(output))
}

func TestDetectDiff_PlanUsesExitCode(t *testing.T) {
	assert.True(t, DetectDiff(OperationPlan, 2, nil))
	assert.False(t, DetectDiff(OperationPlan, 0, nil))
	assert.False(t, DetectDiff(OperationPlan, 1, nil))
}

func TestDetectDiff_ApplyParsesSummary(t *testing.T) {
	changed := []byte("...\nApply complete! Resources: 1 added, 0 changed, 0 destroyed.\n")
	unchanged := []byte("...\nApply complete! Resources: 0 added, 0 changed, 0 destroyed.\n")

	assert.True(t, DetectDiff(OperationApply, 0, changed))
	assert.False(t, DetectDiff(OperationApply, 0, unchanged))
	assert.False(t, DetectDiff(OperationApply, 1, changed))
}

func TestHasIAMChanges(t *testing.T) {
	iam := []byte(`
Terraform will perform the following actions:

  # aws_iam_role.deploy will be created
  + resource "aws_iam_role" "deploy" {}

  # module.accounts.aws_iam_policy.admin will be updated in-place
`)
	noIAM := []byte(`
  # aws_s3_bucket.logs will be created
  # aws_instance.iam_lookalike will be created
`)

	assert.True(t, HasIAMChanges(iam))
	assert.False(t, HasIAMChanges(noIAM))
}

func TestHasIAMChanges_StripsColorCodes(t *testing.T) {
	colored := []byte("  \x1b[1m# aws_iam_role.deploy\x1b[0m will be created\n")
	assert.True(t, HasIAMChanges(colored))
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, 0, compareVersions("1.5.0", "1.5.0"))
	assert.Equal(t, -1, compareVersions("0.14.11", "1.0.0"))
	assert.Equal(t, 1, compareVersions("v1.10.2", "1.9.8"))
	assert.Equal(t, 0, compareVersions("1.6.0-beta1", "1.6.0"))
}
