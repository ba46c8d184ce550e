package integration

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// Alpha scales EEPE to exposure at default.
	Alpha = 1.4
	// capitalConfidence is the IRB supervisory confidence level.
	capitalConfidence = 0.999
	// riskWeightFactor converts capital to risk-weighted assets (1 / 8%).
	riskWeightFactor = 12.5
)

// CapitalRequirement evaluates the Basel IRB capital charge K per unit of
// exposure for a one-year default probability pd, loss given default lgd and
// effective maturity m. pd outside (0, 1) has no IRB quantile and yields 0.
func CapitalRequirement(pd, lgd, m float64) float64 {
	if pd <= 0 || pd >= 1 || math.IsNaN(pd) {
		return 0
	}

	g := (1 - math.Exp(-50*pd)) / (1 - math.Exp(-50))
	r := 0.12*g + 0.24*(1-g)
	b := math.Pow(0.11852-0.05478*math.Log(pd), 2)

	n := distuv.UnitNormal
	conditional := n.CDF((n.Quantile(pd) + math.Sqrt(r)*n.Quantile(capitalConfidence)) / math.Sqrt(1-r))

	return lgd * (conditional - pd) * (1 + (m-2.5)*b) / (1 - 1.5*b)
}

// RiskWeightedAssets returns Alpha * EEPE * 12.5 * K.
func RiskWeightedAssets(eepe, k float64) float64 {
	return Alpha * eepe * riskWeightFactor * k
}
