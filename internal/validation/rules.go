package validation

import (
	"math"
	"strings"

	"github.com/KotFed0t/tradedash_bot/internal/model"
)

type RuleError struct {
	Message string
}

func (e *RuleError) Error() string {
	return e.Message
}

// Rule связывает предикат нарушения с сообщением, которое показываем пользователю
type Rule struct {
	Violated func(d model.AccountDraft) bool
	Message  string
}

// правила гоняем строго по порядку перед каждым verify и confirm, первое нарушенное побеждает
var DraftRules = []Rule{
	{
		Violated: func(d model.AccountDraft) bool { return strings.TrimSpace(d.BrokerName) == "" },
		Message:  "Broker Name is required.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return d.AccountID == "" },
		Message:  "Account ID is required.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return d.APIKey == "" },
		Message:  "API Key is required.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return d.Location == "" },
		Message:  "Location is required.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return !positiveFinite(d.MaxPositionLimit) },
		Message:  "Max Position Limit must be a positive number.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return !positiveFinite(d.SplittingTarget) },
		Message:  "Splitting Target must be a positive number.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return d.AutoLotSizeSet && !positiveFinite(d.RiskPercentage) },
		Message:  "Risk Percentage must be a positive number when Auto Lot Size is enabled.",
	},
	{
		// дневной риск опционален: ноль и меньше значит не задан, заданный обязан быть конечным
		Violated: func(d model.AccountDraft) bool {
			return d.DailyRiskPercentage > 0 && !positiveFinite(d.DailyRiskPercentage)
		},
		Message: "Daily Risk Percentage must be a positive number.",
	},
	{
		Violated: func(d model.AccountDraft) bool {
			return d.DailyRiskPercentage > 0 && d.DailyRiskPercentage > 100
		},
		Message: "Daily Risk Percentage cannot exceed 100.",
	},
	{
		Violated: func(d model.AccountDraft) bool { return d.DailyRiskPercentage > 0 && d.Timezone == "" },
		Message:  "Timezone is required when Daily Risk Percentage is set.",
	},
}

func ValidateDraft(d model.AccountDraft) error {
	for _, rule := range DraftRules {
		if rule.Violated(d) {
			return &RuleError{Message: rule.Message}
		}
	}
	return nil
}

func positiveFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
