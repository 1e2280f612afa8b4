// Package sentiment derives a 0-100 market mood score from index moves and
// headline wording.
package sentiment

import (
	"math"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"github.com/deusflow/stockpulse/internal/news"
)

// Neutral is every sub-score's value when its data is unavailable.
const Neutral = 50

const (
	weightMarket  = 0.4
	weightNews    = 0.4
	weightBreadth = 0.2

	// marketSpan is the percent move mapped to 0 (at -marketSpan) and 100 (at +marketSpan).
	marketSpan = 3.0
)

// IndexSnapshot is the latest quote for one tracked index.
type IndexSnapshot struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
}

// Breakdown shows each sub-score that went into the composite.
type Breakdown struct {
	Market  int `json:"market"`
	News    int `json:"news"`
	Breadth int `json:"breadth"`
}

type Result struct {
	Score     int       `json:"score"`
	Label     string    `json:"label"`
	Breakdown Breakdown `json:"breakdown"`
}

// Compute scores the canonical items and the available index snapshots. The
// market average enters the composite unrounded; Breakdown reports it rounded.
func Compute(items []news.Item, snapshots []IndexSnapshot) Result {
	market := marketAverage(snapshots)
	b := Breakdown{
		Market:  clamp(int(math.Round(market)), 0, 100),
		News:    NewsScore(items),
		Breadth: BreadthScore(snapshots),
	}
	score := composite(market, b.News, b.Breadth)
	return Result{Score: score, Label: Label(score), Breakdown: b}
}

// Composite weights the three sub-scores and clamps to [0, 100].
func Composite(market, newsScore, breadth int) int {
	return composite(float64(market), newsScore, breadth)
}

func composite(market float64, newsScore, breadth int) int {
	raw := weightMarket*market + weightNews*float64(newsScore) + weightBreadth*float64(breadth)
	return clamp(int(math.Round(raw)), 0, 100)
}

// MarketScore maps each index's percent change linearly from -3% (0) to +3% (100)
// and averages the results.
func MarketScore(snapshots []IndexSnapshot) int {
	return clamp(int(math.Round(marketAverage(snapshots))), 0, 100)
}

func marketAverage(snapshots []IndexSnapshot) float64 {
	if len(snapshots) == 0 {
		return Neutral
	}
	sum := lo.SumBy(snapshots, func(s IndexSnapshot) float64 {
		v := (s.ChangePercent + marketSpan) / (2 * marketSpan) * 100
		return math.Max(0, math.Min(100, v))
	})
	return sum / float64(len(snapshots))
}

// BreadthScore is the share of indices that are up.
func BreadthScore(snapshots []IndexSnapshot) int {
	if len(snapshots) == 0 {
		return Neutral
	}
	up := lo.CountBy(snapshots, func(s IndexSnapshot) bool { return s.ChangePercent > 0 })
	return int(math.Round(100 * float64(up) / float64(len(snapshots))))
}

// NewsScore is the share of positive keyword hits among all keyword hits in
// titles and descriptions.
func NewsScore(items []news.Item) int {
	var pos, neg int
	for _, it := range items {
		p, n := CountKeywords(it.Title + " " + it.Description)
		pos += p
		neg += n
	}
	if pos+neg == 0 {
		return Neutral
	}
	return int(math.Round(float64(pos) / float64(pos+neg) * 100))
}

// CountKeywords counts whole-word, case-insensitive hits of the positive and
// negative keyword sets in text.
func CountKeywords(text string) (positive, negative int) {
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		switch {
		case positiveWords[w]:
			positive++
		case negativeWords[w]:
			negative++
		}
	}
	return positive, negative
}

var positiveWords = map[string]bool{
	"surge": true, "surges": true, "surged": true, "surging": true,
	"rally": true, "rallies": true, "rallied": true,
	"gain": true, "gains": true, "gained": true,
	"rise": true, "rises": true, "rising": true, "rose": true,
	"jump": true, "jumps": true, "jumped": true,
	"soar": true, "soars": true, "soared": true,
	"climb": true, "climbs": true, "climbed": true,
	"record": true, "beat": true, "beats": true,
	"bullish": true, "growth": true, "boom": true, "strong": true,
	"upgrade": true, "upgrades": true, "upgraded": true,
	"optimism": true, "optimistic": true,
	"rebound": true, "rebounds": true, "recovery": true,
	"profit": true, "profits": true, "outperform": true, "outperforms": true,
}

var negativeWords = map[string]bool{
	"fall": true, "falls": true, "fell": true, "falling": true,
	"drop": true, "drops": true, "dropped": true,
	"plunge": true, "plunges": true, "plunged": true,
	"slump": true, "slumps": true, "slumped": true,
	"decline": true, "declines": true, "declined": true,
	"loss": true, "losses": true,
	"crash": true, "crashes": true, "crashed": true,
	"tumble": true, "tumbles": true, "tumbled": true,
	"slide": true, "slides": true, "sink": true, "sinks": true, "sank": true,
	"bearish": true, "recession": true, "selloff": true, "sell-off": true,
	"downgrade": true, "downgrades": true, "downgraded": true,
	"weak": true, "fear": true, "fears": true,
	"miss": true, "misses": true, "missed": true,
	"layoffs": true, "bankruptcy": true, "warning": true,
}

// Label names a composite score.
func Label(score int) string {
	switch {
	case score >= 80:
		return "Extremely Bullish"
	case score >= 65:
		return "Bullish"
	case score >= 55:
		return "Slightly Bullish"
	case score >= 45:
		return "Neutral"
	case score >= 35:
		return "Slightly Bearish"
	case score >= 20:
		return "Bearish"
	default:
		return "Extremely Bearish"
	}
}

func clamp(v, low, high int) int {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}
