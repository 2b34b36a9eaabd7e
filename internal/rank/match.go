package rank

import (
	"fmt"
	"sort"
	"strings"
)

// MatchOutcome classifies how a keyword's SERP relates to the client's
// owned domains. The found / confirmed-absent / inconclusive distinction is
// deliberate: collapsing "incomplete" into "not found" would overstate
// confidence.
type MatchOutcome string

// Match outcomes.
const (
	OutcomeRanked     MatchOutcome = "ranked"
	OutcomeNotFound   MatchOutcome = "not-found-within-depth"
	OutcomeIncomplete MatchOutcome = "incomplete"
	OutcomeError      MatchOutcome = "error"
)

// NormalizeDomain reduces a raw domain or URL to its bare host: lowercase,
// scheme stripped, leading "www." stripped, path/query/port stripped.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(d, sep); i >= 0 {
			d = d[:i]
		}
	}
	if i := strings.Index(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimSuffix(d, ".")
}

// DomainSet is the normalized set of domains owned by a client. It is
// computed once at PREPARE and read-only afterward.
type DomainSet struct {
	owned []string
}

// NewDomainSet normalizes and deduplicates the given domains.
func NewDomainSet(domains ...string) DomainSet {
	seen := make(map[string]struct{}, len(domains))
	var owned []string
	for _, d := range domains {
		n := NormalizeDomain(d)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		owned = append(owned, n)
	}
	sort.Strings(owned)
	return DomainSet{owned: owned}
}

// Domains returns the normalized owned domains.
func (s DomainSet) Domains() []string {
	return append([]string(nil), s.owned...)
}

// Empty reports whether the set holds no domains.
func (s DomainSet) Empty() bool {
	return len(s.owned) == 0
}

// Match reports whether the host belongs to an owned property and which
// owned domain matched. Two hosts are the same property when they are equal
// after normalization or when one is a subdomain of the other.
func (s DomainSet) Match(host string) (string, bool) {
	h := NormalizeDomain(host)
	if h == "" {
		return "", false
	}
	for _, owned := range s.owned {
		if h == owned || strings.HasSuffix(h, "."+owned) || strings.HasSuffix(owned, "."+h) {
			return owned, true
		}
	}
	return "", false
}

// MergeOrganic concatenates the organic items of every result page and sorts
// them ascending by rank, reconstructing one ranked list.
func MergeOrganic(pages []SerpPage) []OrganicItem {
	var items []OrganicItem
	for _, p := range pages {
		items = append(items, p.Items...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Rank < items[j].Rank
	})
	return items
}

// MatchResult is the classification of one keyword's SERP against the
// client's owned domains.
type MatchResult struct {
	Outcome       MatchOutcome
	Rank          int
	MatchedDomain string
	OrganicCount  int
}

// MatchRanked scans a merged, rank-sorted organic list and returns the first
// matching item (lowest rank wins). With no match, a full result set yields
// a confirmed absence while a short one is inconclusive.
func MatchRanked(items []OrganicItem, set DomainSet, depth int) MatchResult {
	for _, item := range items {
		if owned, ok := set.Match(item.Domain); ok {
			return MatchResult{
				Outcome:       OutcomeRanked,
				Rank:          item.Rank,
				MatchedDomain: owned,
				OrganicCount:  len(items),
			}
		}
	}
	if len(items) < depth {
		return MatchResult{Outcome: OutcomeIncomplete, OrganicCount: len(items)}
	}
	return MatchResult{Outcome: OutcomeNotFound, OrganicCount: len(items)}
}

// RankLabel renders the human-readable outcome string for a keyword.
func RankLabel(res MatchResult, depth int) string {
	switch res.Outcome {
	case OutcomeRanked:
		return fmt.Sprintf("%d", res.Rank)
	case OutcomeNotFound:
		return fmt.Sprintf(">%d", depth)
	case OutcomeIncomplete:
		return fmt.Sprintf("INCOMPLETE (%d/%d)", res.OrganicCount, depth)
	default:
		return "ERR_TASK_FAILED"
	}
}

// ErrorRankLabel renders the label for a keyword whose task never completed.
func ErrorRankLabel(state TaskState) string {
	switch state {
	case TaskNotFound:
		return "ERR_TASK_NOT_FOUND"
	case TaskQueued:
		return "ERR_TASK_TIMEOUT"
	default:
		return "ERR_TASK_FAILED"
	}
}

// NormalizeKeyword canonicalizes a keyword for dedup and cache keys.
func NormalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToLower(kw)), " ")
}
