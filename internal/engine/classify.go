package engine

import "github.com/tridentsec/trident-analytics/internal/models"

// Classify derives the classification summary from alert feedback. Only
// true_positive and false_positive alerts count; ground truth for negatives is
// not available so TN and FN stay zero. All percentages are 0 when no alert
// carries feedback.
func Classify(alerts []models.AlertRecord) models.ClassificationSummary {
	var s models.ClassificationSummary
	s.Total = len(alerts)
	for _, a := range alerts {
		switch a.Status {
		case models.AlertStatusTruePositive:
			s.TP++
		case models.AlertStatusFalsePositive:
			s.FP++
		}
	}
	s.TotalWithFeedback = s.TP + s.FP

	s.Accuracy = percent(s.TP, s.TotalWithFeedback)
	s.Precision = percent(s.TP, s.TP+s.FP)
	s.Recall = percent(s.TP, s.TP+s.FN)
	if sum := s.Precision + s.Recall; sum > 0 {
		s.F1Score = 2 * s.Precision * s.Recall / sum
	}
	s.FPRate = percent(s.FP, s.TotalWithFeedback)
	return s
}

func percent(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}
