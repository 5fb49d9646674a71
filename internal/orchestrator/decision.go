package orchestrator

import (
	"fmt"

	"github.com/visiq/visibility-cli/internal/model"
)

// ShouldAutoPublish decides whether a freshly fingerprinted business is
// published without a manual trigger. Pure function: the caller supplies the
// current status, tier and a fresh verdict, and gets the decision plus the
// skip reasons.
func ShouldAutoPublish(status model.Status, tier model.Tier, verdict *model.NotabilityVerdict) (bool, []string) {
	var reasons []string

	if status != model.StatusFingerprinted {
		reasons = append(reasons, fmt.Sprintf("status is %s, not %s", status, model.StatusFingerprinted))
	}
	if !tier.AutoPublishEligible() {
		reasons = append(reasons, fmt.Sprintf("tier %s is not auto-publish eligible", tier))
	}
	if verdict == nil {
		reasons = append(reasons, "no notability verdict available")
	} else if !verdict.Passed {
		reasons = append(reasons, "notability verdict failed")
		reasons = append(reasons, verdict.Reasons...)
	}

	return len(reasons) == 0, reasons
}
