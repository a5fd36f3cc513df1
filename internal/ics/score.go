package ics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"ics/internal/model"
)

// Score is the Bayesian combination of the opinions of a news item's
// sharers.
type Score struct {
	ProdAlpha           float64
	ProdAlphaComplement float64
	ProdBeta            float64
	ProdBetaComplement  float64

	// Legitimate and Fake are the linear scores. They underflow to zero
	// for widely shared items, so the label is decided on the log scores.
	Legitimate float64
	Fake       float64

	LogLegitimate float64
	LogFake       float64

	Sharers    int
	Recognized int
}

// Label compares the log scores and resolves ties to legitimate.
func (s Score) Label() model.Label {
	if s.LogLegitimate >= s.LogFake {
		return model.Legitimate
	}
	return model.Fake
}

// Prediction is the classification of a single news item.
type Prediction struct {
	NewsID string
	Label  model.Label
	Score  Score
	// Warning is set when no sharer had trained parameters.
	Warning *DegenerateScoreWarning
}

func (p Prediction) Degenerate() bool {
	return p.Warning != nil
}

// score multiplies in the opinion of every sharer that has parameters.
// Sharers without a record abstain, contributing 1.0 to every product.
func score(sharers []string, params ParameterTable, omega float64) Score {
	alpha := make([]float64, 0, len(sharers))
	alphaComplement := make([]float64, 0, len(sharers))
	beta := make([]float64, 0, len(sharers))
	betaComplement := make([]float64, 0, len(sharers))

	for _, userID := range sharers {
		p, ok := params[userID]
		if !ok {
			continue
		}
		alpha = append(alpha, p.ProbAlpha)
		alphaComplement = append(alphaComplement, p.ProbAlphaComplement)
		beta = append(beta, p.ProbBeta)
		betaComplement = append(betaComplement, p.ProbBetaComplement)
	}

	s := Score{
		ProdAlpha:           floats.Prod(alpha),
		ProdAlphaComplement: floats.Prod(alphaComplement),
		ProdBeta:            floats.Prod(beta),
		ProdBetaComplement:  floats.Prod(betaComplement),
		Sharers:             len(sharers),
		Recognized:          len(alpha),
	}
	s.Legitimate = omega * s.ProdAlpha * s.ProdAlphaComplement * 100
	s.Fake = (1 - omega) * s.ProdBeta * s.ProdBetaComplement * 100
	s.LogLegitimate = math.Log(omega) + sumLog(alpha) + sumLog(alphaComplement)
	s.LogFake = math.Log(1-omega) + sumLog(beta) + sumLog(betaComplement)
	return s
}

// sumLog returns the sum of the natural logs of xs.
func sumLog(xs []float64) float64 {
	logs := make([]float64, len(xs))
	for i, x := range xs {
		logs[i] = math.Log(x)
	}
	return floats.Sum(logs)
}

func predict(newsID string, sharers []string, params ParameterTable, omega float64) Prediction {
	s := score(sharers, params, omega)
	p := Prediction{
		NewsID: newsID,
		Label:  s.Label(),
		Score:  s,
	}
	if s.Recognized == 0 {
		p.Warning = &DegenerateScoreWarning{NewsID: newsID}
	}
	return p
}
