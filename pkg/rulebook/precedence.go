package rulebook

import (
	"errors"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ErrNoCandidates is returned by Resolve when the candidate set is empty.
var ErrNoCandidates = errors.New("no candidate rules")

// Selection is the outcome of precedence resolution.
type Selection struct {
	Rule        Rule
	Specificity int

	// ReviewFlagged is set when more than one candidate survived every
	// tie-break except the final rule-ID comparison. The selection is
	// still deterministic, but the rulebook deserves a lint pass.
	ReviewFlagged bool

	// ResidualTies holds the rule IDs that tied with the winner, when
	// ReviewFlagged is set.
	ResidualTies []string
}

// Resolve picks exactly one rule from the candidate set. Precedence order:
// higher specificity, then lower numeric priority, then greatest version
// tag, then smallest rule ID as the deterministic final tie-break.
func Resolve(candidates []Rule) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}

	ranked := make([]Rule, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if sa, sb := a.Scope.Specificity(), b.Scope.Specificity(); sa != sb {
			return sa > sb
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if c := CompareVersionTags(a.VersionTag, b.VersionTag); c != 0 {
			return c > 0
		}
		return a.ID < b.ID
	})

	winner := ranked[0]
	sel := Selection{Rule: winner, Specificity: winner.Scope.Specificity()}

	for _, r := range ranked[1:] {
		if r.Scope.Specificity() == sel.Specificity &&
			r.Priority == winner.Priority &&
			CompareVersionTags(r.VersionTag, winner.VersionTag) == 0 {
			sel.ReviewFlagged = true
			sel.ResidualTies = append(sel.ResidualTies, r.ID)
		}
	}

	return sel, nil
}

// CompareVersionTags orders two version tags. Tags that both parse as
// semantic versions are compared semantically; otherwise the comparison
// falls back to plain lexicographic order. Returns -1, 0 or 1.
func CompareVersionTags(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA == nil && errB == nil {
		return va.Compare(vb)
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
