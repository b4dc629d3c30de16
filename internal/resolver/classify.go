package resolver

import "strings"

// Classification is what one poll response means for the job.
type Classification int

const (
	// ClassContinue means the job is still queued or running.
	ClassContinue Classification = iota
	// ClassSuccess means the job finished and a resolved URL is expected.
	ClassSuccess
	// ClassPermanent means the job failed and retrying cannot help.
	ClassPermanent
	// ClassTemporary means the job failed in a way a later retry may fix.
	ClassTemporary
)

// Classify maps the API's status vocabulary onto a classification.
// Unknown statuses are treated as non-terminal so a vocabulary extension
// on the API side degrades to slower polling, not data loss.
func Classify(status string) (Classification, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "success":
		return ClassSuccess, true
	case "failed_permanent", "failed_auth", "failed_captcha":
		return ClassPermanent, true
	case "failed", "error", "not_found":
		return ClassTemporary, true
	case "pending", "processing":
		return ClassContinue, true
	default:
		return ClassContinue, false
	}
}

// IsAuthFailure reports whether the status indicates expired credentials
// on the resolution service. These trip the scheduler's pause latch.
func IsAuthFailure(status string) bool {
	return strings.EqualFold(strings.TrimSpace(status), "failed_auth")
}
