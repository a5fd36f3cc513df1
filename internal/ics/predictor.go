package ics

import "go.uber.org/zap"

// Predict classifies a single news item using the current parameter table.
// A result scored without any recognized sharer carries a
// DegenerateScoreWarning.
func (e *Engine) Predict(ds *Dataset, newsID string) (Prediction, error) {
	params, _, err := e.trained("predict")
	if err != nil {
		return Prediction{}, err
	}

	sharers, ok := ds.Sharers(newsID)
	if !ok {
		return Prediction{}, &UnknownNewsError{NewsID: newsID}
	}

	p := predict(newsID, sharers, params, e.cfg.Omega)
	if p.Degenerate() {
		e.log.Warn("degenerate prediction", zap.String("news_id", newsID), zap.Int("sharers", len(sharers)))
	}
	return p, nil
}
