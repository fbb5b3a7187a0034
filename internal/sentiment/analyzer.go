package sentiment

import (
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/segmentio/fasthash/jody"

	"nflpicks/engine/internal/models"
)

// Post is a scraped post or comment
type Post struct {
	ID          string
	Channel     string
	Title       string
	Text        string
	Score       int
	NumComments int
	UpvoteRatio float64
	CreatedAt   time.Time
	IsComment   bool
}

func (p Post) content() string {
	return strings.TrimSpace(p.Title + " " + p.Text)
}

type teamMatcher struct {
	team     models.Team
	patterns []*regexp.Regexp
}

// match returns the byte span of the first reference to the team in text, or nil
func (m teamMatcher) match(text string) []int {
	var best []int
	for _, re := range m.patterns {
		if loc := re.FindStringIndex(text); loc != nil && (best == nil || loc[0] < best[0]) {
			best = loc
		}
	}
	return best
}

// Analyzer scores posts for team-pick signal according to a Policy
type Analyzer struct {
	policy *Policy
	pick   *regexp.Regexp
	high   *regexp.Regexp
	medium *regexp.Regexp
	low    *regexp.Regexp
	teams  []teamMatcher
}

// NewAnalyzer compiles the keyword and team patterns of policy
func NewAnalyzer(policy *Policy) *Analyzer {
	a := &Analyzer{
		policy: policy,
		pick:   keywordPattern(policy.PickKeywords),
		high:   keywordPattern(policy.ConfidenceKeywords.High),
		medium: keywordPattern(policy.ConfidenceKeywords.Medium),
		low:    keywordPattern(policy.ConfidenceKeywords.Low),
	}
	for _, t := range policy.Teams {
		m := teamMatcher{team: t}
		m.patterns = append(m.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(t.Name)+`\b`))
		if compact := t.CompactName(); compact != "" {
			m.patterns = append(m.patterns, regexp.MustCompile(`(?i)\b`+regexp.QuoteMeta(compact)+`\b`))
		}
		if t.Code != "" {
			m.patterns = append(m.patterns, codePatterns(t.Code, policy.isAmbiguousCode(t.Code))...)
		}
		a.teams = append(a.teams, m)
	}
	return a
}

// codePatterns matches a team code case-sensitively as a whole word. Codes
// that double as words ("NO", "WAS", "GB") only count next to a betting
// token: a line ("NO -3"), a market ("NO ML") or a matchup marker ("vs NO").
func codePatterns(code string, ambiguous bool) []*regexp.Regexp {
	c := regexp.QuoteMeta(code)
	if !ambiguous {
		return []*regexp.Regexp{regexp.MustCompile(`\b` + c + `\b`)}
	}
	return []*regexp.Regexp{
		regexp.MustCompile(`\b` + c + `\s*[-+]\d`),
		regexp.MustCompile(`\b` + c + `\s+(?i:ml|moneyline|spread|covers?)\b`),
		regexp.MustCompile(`(?i:\bvs\.?|@)\s*` + c + `\b`),
	}
}

// keywordPattern matches any of words as whole words in lowercased text
func keywordPattern(words []string) *regexp.Regexp {
	if len(words) == 0 {
		return nil
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(strings.ToLower(w)), " ", `\s+`)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func matches(re *regexp.Regexp, text string) bool {
	return re != nil && re.MatchString(text)
}

// Qualifies reports whether a post carries pick intent
func (a *Analyzer) Qualifies(p Post) bool {
	return matches(a.pick, strings.ToLower(p.content()))
}

// Weight is the engagement weight of a qualifying post
func (a *Analyzer) Weight(p Post) float64 {
	w := float64(max(p.Score, 1)) + a.policy.Weights.CommentWeight*float64(p.NumComments)
	if p.UpvoteRatio > a.policy.Weights.ApprovalThreshold {
		w *= a.policy.Weights.ApprovalBoost
	}
	return w
}

type teamTally struct {
	mentions int
	weighted float64
	high     int
	medium   int
	sources  map[string]struct{}
	contexts []string
}

// Analyze aggregates posts into a report. GeneratedAt and Tier are left for the caller.
func (a *Analyzer) Analyze(posts []Post) *models.SentimentReport {
	report := &models.SentimentReport{
		Teams:      make(map[string]models.TeamSentiment),
		Confidence: models.ConfidenceLow,
	}

	tallies := make(map[string]*teamTally)
	channels := make(map[string]struct{})
	var highCount, mediumCount, lowCount, qualifying int
	var totalWeight float64

	for _, p := range posts {
		text := p.content()
		lower := strings.ToLower(text)
		if !matches(a.pick, lower) {
			continue
		}

		qualifying++
		if p.IsComment {
			report.CommentsAnalyzed++
		} else {
			report.PostsAnalyzed++
		}
		if p.Channel != "" {
			channels[p.Channel] = struct{}{}
		}

		weight := a.Weight(p)
		totalWeight += weight

		isHigh := matches(a.high, lower)
		isMedium := matches(a.medium, lower)
		if isHigh {
			highCount++
		}
		if isMedium {
			mediumCount++
		}
		if matches(a.low, lower) {
			lowCount++
		}

		for _, m := range a.teams {
			loc := m.match(text)
			if loc == nil {
				continue
			}
			t, ok := tallies[m.team.Name]
			if !ok {
				t = &teamTally{sources: make(map[string]struct{})}
				tallies[m.team.Name] = t
			}
			t.mentions++
			t.weighted += weight
			if isHigh {
				t.high++
			}
			if isMedium {
				t.medium++
			}
			if p.Channel != "" {
				t.sources[p.Channel] = struct{}{}
			}
			if len(t.contexts) < a.policy.Context.MaxSnippets {
				t.contexts = append(t.contexts, snippet(text, loc, a.policy.Context.Window))
			}
		}
	}

	for name, t := range tallies {
		report.Teams[name] = models.TeamSentiment{
			Mentions:      t.mentions,
			WeightedScore: round(t.weighted),
			Popularity:    round(a.popularity(t)),
			Sources:       sortedKeys(t.sources),
			Contexts:      t.contexts,
		}
		report.TotalMentions += t.mentions
	}

	if qualifying > 0 {
		avg := totalWeight / float64(qualifying)
		report.SentimentScore = round(math.Min(math.Max(avg/a.policy.Weights.SentimentDivisor, 0), 1))
	}
	report.Confidence = a.confidenceTier(highCount, mediumCount, lowCount)
	report.Provenance.Sources = sortedKeys(channels)
	report.Provenance.Fingerprint = Fingerprint(report)
	return report
}

// popularity is mentions x mean weight, raised by source diversity and assertive wording
func (a *Analyzer) popularity(t *teamTally) float64 {
	if t.mentions == 0 {
		return 0
	}
	base := float64(t.mentions) * (t.weighted / float64(t.mentions))
	bonus := 1.0
	if n := len(t.sources); n > 1 {
		bonus += a.policy.Popularity.DiversityBonus * float64(n-1)
	}
	bonus += a.policy.Popularity.HighConfidenceBonus * float64(t.high) / float64(t.mentions)
	bonus += a.policy.Popularity.MediumConfidenceBonus * float64(t.medium) / float64(t.mentions)
	return base * bonus
}

func (a *Analyzer) confidenceTier(high, medium, low int) models.ConfidenceTier {
	total := high + medium + low
	if total == 0 {
		return models.ConfidenceLow
	}
	if high > medium && high > low && float64(high)/float64(total) > a.policy.Tiers.HighRatio {
		return models.ConfidenceHigh
	}
	if float64(medium)/float64(total) > a.policy.Tiers.MediumRatio || medium > low {
		return models.ConfidenceMedium
	}
	return models.ConfidenceLow
}

// snippet returns up to window bytes either side of loc, aligned to rune boundaries
func snippet(text string, loc []int, window int) string {
	start := max(loc[0]-window, 0)
	end := min(loc[1]+window, len(text))
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return strings.TrimSpace(text[start:end])
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Fingerprint hashes the team aggregates of a report so identical scrapes compare equal
func Fingerprint(r *models.SentimentReport) string {
	names := make([]string, 0, len(r.Teams))
	for name := range r.Teams {
		names = append(names, name)
	}
	sort.Strings(names)

	hash := jody.Init64
	for _, name := range names {
		t := r.Teams[name]
		hash = addString(hash, fmt.Sprintf("%s:%d:%.4f;", name, t.Mentions, t.Popularity))
	}
	hash = jody.AddUint64(hash, uint64(r.PostsAnalyzed))
	hash = jody.AddUint64(hash, uint64(r.CommentsAnalyzed))
	return strconv.FormatUint(hash, 16)
}

// addString folds s into h eight bytes at a time, followed by its length.
// It never reads past the end of s, unlike jody.AddString64.
func addString(h uint64, s string) uint64 {
	size := uint64(len(s))
	var word [8]byte
	for len(s) > 0 {
		n := copy(word[:], s)
		clear(word[n:])
		h = jody.AddUint64(h, binary.LittleEndian.Uint64(word[:]))
		s = s[n:]
	}
	return jody.AddUint64(h, size)
}
