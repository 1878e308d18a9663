package cluster

import (
	"fmt"
	"sort"
	"strings"
)

// Raw cluster indices are arbitrary and unstable across fits. They are
// always remapped to segment labels ranked by mean Monetary before anything
// downstream sees them.

// vocabularies are the named segment ladders, worst to best, for the K
// values the dashboard supports.
var vocabularies = map[int][]string{
	3: {"At-Risk/Lost", "Standard", "VIP (Champion)"},
	4: {"Lost", "At-Risk", "Loyal", "VIP"},
	5: {"Lost", "Hibernating", "Potential", "Loyal", "Champion"},
	6: {"Lost", "Critical Risk", "At-Risk", "Potential", "Loyal", "Champion"},
}

// Vocabulary returns the ordered label set for k, worst to best. K values
// without a named ladder get generic ordinal labels.
func Vocabulary(k int) []string {
	if vocab, ok := vocabularies[k]; ok {
		out := make([]string, k)
		copy(out, vocab)
		return out
	}
	out := make([]string, k)
	for i := range out {
		out[i] = fmt.Sprintf("Segment %d", i)
	}
	return out
}

// MapLabels ranks clusters by mean Monetary and assigns labels from the
// vocabulary: the lowest-spending cluster gets the worst label, the highest
// the best. Ties in mean Monetary break by cluster index so the mapping is
// deterministic.
func MapLabels(assignments []int, monetary []float64, k int) (map[int]string, error) {
	if len(assignments) != len(monetary) {
		return nil, fmt.Errorf("assignments and monetary lengths differ: %d vs %d", len(assignments), len(monetary))
	}

	sums := make([]float64, k)
	counts := make([]int, k)
	for i, c := range assignments {
		if c < 0 || c >= k {
			return nil, fmt.Errorf("cluster index %d outside [0, %d)", c, k)
		}
		sums[c] += monetary[i]
		counts[c]++
	}

	type clusterMean struct {
		index int
		mean  float64
	}
	means := make([]clusterMean, k)
	for c := 0; c < k; c++ {
		mean := 0.0
		if counts[c] > 0 {
			mean = sums[c] / float64(counts[c])
		}
		means[c] = clusterMean{index: c, mean: mean}
	}
	sort.Slice(means, func(i, j int) bool {
		if means[i].mean != means[j].mean {
			return means[i].mean < means[j].mean
		}
		return means[i].index < means[j].index
	})

	vocab := Vocabulary(k)
	mapping := make(map[int]string, k)
	for rank, cm := range means {
		mapping[cm.index] = vocab[rank]
	}
	return mapping, nil
}

// segmentDescriptions gives a one-line meaning per vocabulary keyword.
var segmentDescriptions = map[string]string{
	"Champion":      "Highest spend, most frequent, most recent customers.",
	"VIP":           "Very high spenders with a loyal history.",
	"Loyal":         "Regular, dependable repeat buyers.",
	"Potential":     "Promising customers whose spend is trending up.",
	"Standard":      "Average spend and frequency, the general base.",
	"Hibernating":   "Used to buy regularly but have gone quiet.",
	"At-Risk":       "High churn risk, spend has dropped off.",
	"Critical Risk": "Nearly lost, needs immediate attention.",
	"Lost":          "Long gone and spending very little.",
}

// Describe returns the description whose keyword appears in the label, or a
// generic fallback for ordinal segments.
func Describe(label string) string {
	// Longer keywords first so "Critical Risk" wins over "At-Risk"
	keywords := make([]string, 0, len(segmentDescriptions))
	for kw := range segmentDescriptions {
		keywords = append(keywords, kw)
	}
	sort.Slice(keywords, func(i, j int) bool { return len(keywords[i]) > len(keywords[j]) })

	for _, kw := range keywords {
		if strings.Contains(label, kw) {
			return segmentDescriptions[kw]
		}
	}
	return "Custom segment."
}

// Tier buckets labels for action recommendations.
type Tier string

const (
	TierChampion Tier = "champion"
	TierGrowth   Tier = "growth"
	TierWinback  Tier = "winback"
	TierStandard Tier = "standard"
)

// TierOf maps a segment label to its recommendation tier.
func TierOf(label string) Tier {
	switch {
	case strings.Contains(label, "VIP") || strings.Contains(label, "Champion"):
		return TierChampion
	case strings.Contains(label, "Loyal") || strings.Contains(label, "Potential"):
		return TierGrowth
	case strings.Contains(label, "Lost") || strings.Contains(label, "Risk") || strings.Contains(label, "Hibernating"):
		return TierWinback
	default:
		return TierStandard
	}
}

var recommendations = map[Tier][]string{
	TierChampion: {
		"Assign a dedicated account representative.",
		"Grant early access to new products.",
		"Upgrade to premium loyalty status.",
	},
	TierGrowth: {
		"Add cross-sell suggestions at checkout.",
		"Offer instant discounts above a basket threshold.",
		"Run multi-buy promotions.",
	},
	TierWinback: {
		"Send a we-miss-you campaign.",
		"Offer aggressive 20-30% win-back discounts.",
		"Survey why they stopped buying.",
	},
	TierStandard: {
		"Keep them on the regular newsletter.",
		"Nudge repeat visits with small discounts.",
	},
}

// Recommendations returns the suggested actions for a segment label.
func Recommendations(label string) []string {
	return recommendations[TierOf(label)]
}
