package services

import (
	"math"

	"gatilho_backend/models"
)

// ExtractValue returns the quote field an alert compares against. The second
// return is false when the alert type is not one of the supported values,
// which cannot happen for rows validated at creation.
func ExtractValue(alert *models.Alert, quote *Quote) (float64, bool) {
	switch alert.AlertType {
	case models.AlertTypePrice:
		return quote.Price, true
	case models.AlertTypePercentage:
		return math.Abs(quote.ChangePercent), true
	case models.AlertTypeVolume:
		return float64(quote.Volume), true
	default:
		return 0, false
	}
}

// MatchesCondition compares current against target using plain float
// semantics: boundary values (current == target) match only >= and <=.
// An unrecognized condition never matches.
func MatchesCondition(condition models.Condition, current, target float64) bool {
	switch condition {
	case models.ConditionAbove:
		return current > target
	case models.ConditionBelow:
		return current < target
	case models.ConditionAboveOrEqual:
		return current >= target
	case models.ConditionBelowOrEqual:
		return current <= target
	default:
		return false
	}
}
