package ics

import (
	"maps"
	"math"

	"ics/internal/model"
)

// ParameterTable maps a user id to its trained opinion.
type ParameterTable map[string]model.UserParameters

func (t ParameterTable) Clone() ParameterTable {
	return maps.Clone(t)
}

// Opinion derives the smoothed opinion of a user who shared totR legitimate
// and totF fake training items. counts are the train partition label
// counts and s the smoothing constant. With 0 < s <= MaxSmoothing every
// denominator is positive and finite.
func Opinion(userID string, totR, totF int, counts LabelCounts, s float64) model.UserParameters {
	r := float64(totR) + s
	f := float64(totF) + s

	alpha := r
	alphaComplement := (f / (float64(counts.Fake) + s)) * (float64(counts.Legitimate) + s)
	beta := (alphaComplement * r) / f
	if math.IsInf(beta, 0) {
		// alphaComplement*r overflows for very large s
		beta = alphaComplement * (r / f)
	}
	betaComplement := f

	probAlpha := alpha / (alpha + alphaComplement)
	probBeta := beta / (beta + betaComplement)

	return model.UserParameters{
		UserID:              userID,
		Alpha:               alpha,
		AlphaComplement:     alphaComplement,
		Beta:                beta,
		BetaComplement:      betaComplement,
		ProbAlpha:           probAlpha,
		ProbAlphaComplement: 1 - probAlpha,
		ProbBeta:            probBeta,
		ProbBetaComplement:  1 - probBeta,
	}
}
