package assign

import (
	"sort"
	"strings"

	"github.com/coopfin/bankintake/internal/domain"
	"github.com/coopfin/bankintake/internal/normalize"
)

// Candidate is one member scored against a transaction.
type Candidate struct {
	Member     *domain.Member
	Confidence float64
	Tokens     []string
	Reason     string
}

// Matcher scores members against transaction particulars.
type Matcher struct {
	cfg       *Config
	stopWords map[string]struct{}
}

// NewMatcher creates a matcher from a validated config.
func NewMatcher(cfg *Config) *Matcher {
	stop := make(map[string]struct{}, len(cfg.StopWords))
	for _, w := range cfg.StopWords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	return &Matcher{cfg: cfg, stopWords: stop}
}

// Evaluate scores every member against the transaction and returns the
// candidates with nonzero confidence, highest first. Ties keep member-ID
// order so results are deterministic.
func (m *Matcher) Evaluate(txn *domain.Transaction, members []*domain.Member) []Candidate {
	parsed := normalize.ParseParticulars(txn.Particulars)

	var candidates []Candidate
	for _, member := range members {
		c := m.score(parsed, member)
		if c.Confidence > 0 {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Member.ID < candidates[j].Member.ID
	})
	return candidates
}

// score evaluates one member. Identifier evidence (full phone, member
// number) is conclusive and scores 1.0; name-token overlap and masked-phone
// suffixes accumulate up to their configured weights.
func (m *Matcher) score(parsed normalize.Parsed, member *domain.Member) Candidate {
	c := Candidate{Member: member}

	memberPhone := normalize.NormalizePhone(member.Phone)
	if memberPhone != "" {
		for _, phone := range parsed.Phones {
			if phone == memberPhone {
				c.Confidence = 1.0
				c.Tokens = []string{phone}
				c.Reason = "phone"
				return c
			}
		}
	}

	if parsed.MemberNumber != "" &&
		(equalsFold(parsed.MemberNumber, member.MemberNumber) || equalsFold(parsed.MemberNumber, member.MemberCode)) {
		c.Confidence = 1.0
		c.Tokens = []string{parsed.MemberNumber}
		c.Reason = "member_number"
		return c
	}

	score, tokens := m.nameScore(parsed, member)
	if score > 0 {
		c.Reason = "name"
	}

	if parsed.PhoneLast3 != "" && memberPhone != "" && strings.HasSuffix(memberPhone, parsed.PhoneLast3) {
		// A masked suffix alone matches too many members; it only
		// strengthens name evidence.
		if score > 0 {
			score += m.cfg.PartialPhoneWeight
			tokens = append(tokens, "*"+parsed.PhoneLast3)
			c.Reason = "name+phone_suffix"
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	c.Confidence = score
	c.Tokens = tokens
	return c
}

// nameScore measures token overlap between the member's name and the names
// found in the particulars. At least two overlapping tokens are required;
// one shared name is noise in a member registry.
func (m *Matcher) nameScore(parsed normalize.Parsed, member *domain.Member) (float64, []string) {
	memberTokens := m.tokenize(member.Name)
	if len(memberTokens) == 0 {
		return 0, nil
	}

	source := strings.TrimSpace(parsed.MemberName + " " + parsed.PayerName)
	seen := make(map[string]struct{})
	for _, tok := range m.tokenize(source) {
		seen[tok] = struct{}{}
	}

	var matched []string
	for _, tok := range memberTokens {
		if _, ok := seen[tok]; ok {
			matched = append(matched, tok)
		}
	}
	if len(matched) < 2 {
		return 0, nil
	}

	ratio := float64(len(matched)) / float64(len(memberTokens))
	return ratio * m.cfg.NameTokenWeight, matched
}

func (m *Matcher) tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,-")
		if len(f) < 2 {
			continue
		}
		if _, stop := m.stopWords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func equalsFold(a, b string) bool {
	return b != "" && strings.EqualFold(a, b)
}
