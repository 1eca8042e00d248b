// Package aggregate combines enriched mentions and a price change into one
// per-ticker record. Pure computation; deterministic given its inputs.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"reddit-stock-monitor/internal/types"
)

const topKeywordCount = 5

// Build packs mentions and the optional price change into a TickerRecord.
// Mean sentiment is 0.0 for an empty mention list. LastUpdated is left for
// the store to stamp at write time.
func Build(ticker string, mentions []types.Mention, priceChange *float64) types.TickerRecord {
	return types.TickerRecord{
		Ticker:         strings.ToUpper(ticker),
		Sentiment:      meanSentiment(mentions),
		Mentions:       len(mentions),
		PriceChange24h: priceChange,
		KeyWords:       topKeywords(mentions, topKeywordCount),
		Posts:          mentions,
	}
}

// meanSentiment returns the arithmetic mean rounded to 3 decimals.
func meanSentiment(mentions []types.Mention) float64 {
	if len(mentions) == 0 {
		return 0.0
	}
	total := 0.0
	for _, m := range mentions {
		total += m.Sentiment
	}
	return math.Round(total/float64(len(mentions))*1000) / 1000
}

// topKeywords ranks keywords across all mentions by descending frequency,
// breaking ties by first-encountered order.
func topKeywords(mentions []types.Mention, n int) []string {
	counts := make(map[string]int)
	order := []string{}

	for _, m := range mentions {
		for _, k := range m.Keywords {
			if _, seen := counts[k]; !seen {
				order = append(order, k)
			}
			counts[k]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > n {
		order = order[:n]
	}
	return order
}
