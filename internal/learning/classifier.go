package learning

import "strings"

// Bucket names produced by the classifier.
const (
	BucketBugFix           = "bug-fix"
	BucketRefactor         = "refactor"
	BucketFeature          = "feature"
	BucketSelfImprovement  = "self-improvement"
	BucketAppImprovement   = "app-improvement"
	BucketMobileResponsive = "mobile-responsive"
	BucketDocs             = "docs"
	BucketGeneral          = "general"
)

// rule maps keywords to a bucket. Rules are checked in order; the first
// rule with a matching keyword wins, so earlier rules take precedence
// (e.g. "fix login bug on mobile" is a bug-fix, not mobile-responsive).
type rule struct {
	bucket   string
	keywords []string
}

var classifierRules = []rule{
	{BucketBugFix, []string{"fix", "bug", "broken", "crash", "error", "regression"}},
	{BucketRefactor, []string{"refactor", "cleanup", "clean up", "restructure", "simplify"}},
	{BucketSelfImprovement, []string{"self-improvement", "improve yourself", "chief of staff", "dashboard improvement"}},
	{BucketAppImprovement, []string{"app improvement", "improve app", "app review"}},
	{BucketFeature, []string{"add", "implement", "create", "build", "new feature", "support"}},
	{BucketMobileResponsive, []string{"mobile", "responsive", "viewport", "breakpoint"}},
	{BucketDocs, []string{"document", "docs", "readme", "changelog"}},
}

// Classify maps a task description to its statistics bucket. It is a pure
// function over the text; unknown descriptions fall into the general bucket.
func Classify(description string) string {
	text := strings.ToLower(description)
	for _, r := range classifierRules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.bucket
			}
		}
	}
	return BucketGeneral
}
