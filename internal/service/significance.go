package service

import "math"

const maxConfidencePercent = 99.9

// significance is the outcome of a two-proportion z-test between a challenger
// variant and the control.
type significance struct {
	ZScore     float64
	Confidence float64
}

// twoProportionZTest compares the challenger conversion proportion against
// the control using a pooled standard error. Confidence is a two-tailed
// percentage capped at 99.9.
func twoProportionZTest(controlConversions, controlSent, variantConversions, variantSent int64) significance {
	if controlSent == 0 || variantSent == 0 {
		return significance{}
	}

	p1 := float64(controlConversions) / float64(controlSent)
	p2 := float64(variantConversions) / float64(variantSent)

	pooled := float64(controlConversions+variantConversions) / float64(controlSent+variantSent)
	standardError := math.Sqrt(pooled * (1 - pooled) * (1/float64(controlSent) + 1/float64(variantSent)))
	if standardError == 0 {
		return significance{}
	}

	z := (p2 - p1) / standardError

	confidence := (1 - 2*(1-normalCDF(math.Abs(z)))) * 100
	if confidence < 0 {
		confidence = 0
	}
	if confidence > maxConfidencePercent {
		confidence = maxConfidencePercent
	}

	return significance{ZScore: z, Confidence: confidence}
}

func normalCDF(z float64) float64 {
	return 0.5 * (1 + erf(z/math.Sqrt2))
}

// erf is the Abramowitz and Stegun 7.1.26 approximation, accurate to about
// 1.5e-7 which is far below the resolution the confidence readout needs.
func erf(x float64) float64 {
	const (
		a1 = 0.254829592
		a2 = -0.284496736
		a3 = 1.421413741
		a4 = -1.453152027
		a5 = 1.061405429
		p  = 0.3275911
	)

	sign := 1.0
	if x < 0 {
		sign = -1.0
		x = -x
	}

	t := 1 / (1 + p*x)
	y := 1 - (((((a5*t+a4)*t)+a3)*t+a2)*t+a1)*t*math.Exp(-x*x)

	return sign * y
}
