package terraform

import (
	"math/rand"
	"sort"
	"time"
)

// MaxRetries is the attempt budget for one command, first attempt included.
const MaxRetries = 5

// retryDeadline caps the total wall-clock time spent retrying one command.
const retryDeadline = 15 * time.Minute

// retriablePatterns are output substrings that mark a failure as transient.
// They cover provider-side throttling and the network hiccups large plans hit
// when pulling many remote state reads at once.
var retriablePatterns = []string{
	"RequestLimitExceeded",
	"Throttling",
	"ThrottlingException",
	"TooManyRequestsException",
	"unexpected EOF",
	"connection reset by peer",
	"TLS handshake timeout",
	"temporary failure in name resolution",
	"timeout while waiting for state",
	"i/o timeout",
	"no such host",
	"Client.Timeout exceeded while awaiting headers",
}

// RetriableErrors returns the transient failure patterns present in the
// output, sorted and deduplicated. An empty result means the failure is not
// worth retrying.
func RetriableErrors(output []byte) []string {
	text := string(output)
	seen := make(map[string]bool)
	for _, pattern := range retriablePatterns {
		if containsFold(text, pattern) {
			seen[pattern] = true
		}
	}
	matches := make([]string, 0, len(seen))
	for pattern := range seen {
		matches = append(matches, pattern)
	}
	sort.Strings(matches)
	return matches
}

// containsFold is a case-insensitive substring check without allocating
// lowered copies of multi-megabyte plan output.
func containsFold(s, substr string) bool {
	n := len(substr)
	if n == 0 {
		return true
	}
	for i := 0; i+n <= len(s); i++ {
		if equalFold(s[i:i+n], substr) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// backoff returns the sleep before the next attempt: one second per attempt
// so far, plus up to a second of jitter so parallel directories retrying the
// same throttled API spread out.
func backoff(attempt int) time.Duration {
	base := time.Duration(attempt) * time.Second
	jitter := time.Duration(rand.Int63n(int64(time.Second)))
	return base + jitter
}
