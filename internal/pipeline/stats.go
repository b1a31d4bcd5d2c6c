package pipeline

import (
	"math"
	"sort"

	"compsheet/internal"
	"compsheet/internal/util"
)

const (
	listLowFactor  = 0.95
	listHighFactor = 1.08
)

// ComputeStats derives market statistics from comps. Sold comps need both a
// sold price and a square footage. Zero counts as missing for sold price,
// sqft, price per sqft and DOM.
func ComputeStats(comps []internal.Comp) internal.MarketStats {
	var stats internal.MarketStats

	soldPrices := make([]float64, 0, len(comps))
	ppsf := make([]float64, 0, len(comps))
	for _, c := range comps {
		if !truthy(c.SoldPrice) || !truthy(c.Sqft) {
			continue
		}
		soldPrices = append(soldPrices, *c.SoldPrice)
		area := *c.Sqft
		if area == 0 {
			area = 1
		}
		if v := *c.SoldPrice / area; v != 0 && !math.IsNaN(v) {
			ppsf = append(ppsf, v)
		}
	}
	sort.Float64s(soldPrices)

	doms := make([]float64, 0, len(comps))
	for _, c := range comps {
		if truthy(c.DOM) {
			doms = append(doms, *c.DOM)
		}
	}

	stats.AvgSoldPrice = roundedMean(soldPrices)
	stats.AvgPricePerSqft = roundedMean(ppsf)
	stats.AvgDOM = roundedMean(doms)

	if len(soldPrices) > 0 {
		median := soldPrices[len(soldPrices)/2]
		stats.Median = util.FloatPtr(median)
		stats.SuggestedListLow = util.FloatPtr(math.Round(median * listLowFactor))
		stats.SuggestedListHigh = util.FloatPtr(math.Round(median * listHighFactor))
	}
	return stats
}

func truthy(v *float64) bool {
	return v != nil && *v != 0 && !math.IsNaN(*v)
}

func roundedMean(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return util.FloatPtr(math.Round(sum / float64(len(values))))
}
