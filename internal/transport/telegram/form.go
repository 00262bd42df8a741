package telegram

import (
	"strconv"
	"strings"

	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// parseNumber повторяет поведение числового поля формы: мусор превращается в 0,
// допустимость значения проверяют правила черновика на сабмите
func parseNumber(text string) float64 {
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}

	return v
}

// authInputError проверяет введенное поле логина/регистрации, пустая строка - поле принято
func authInputError(sess model.Session, text string) string {
	switch sess.State {
	case model.ExpectingLoginIdentifier:
		if validate.Var(strings.TrimSpace(text), "required") != nil {
			return "Please enter your email or username."
		}
	case model.ExpectingLoginPassword:
		if validate.Var(text, "required") != nil {
			return "Please enter your password."
		}
	case model.ExpectingSignupEmail:
		if validate.Var(strings.TrimSpace(text), "required,email") != nil {
			return "Please enter a valid email address."
		}
	case model.ExpectingSignupMobile:
		if validate.Var(strings.TrimSpace(text), "required,e164") != nil {
			return "Please enter the mobile number in international format, e.g. +15551234567."
		}
	case model.ExpectingSignupFirstName, model.ExpectingSignupLastName:
		if validate.Var(strings.TrimSpace(text), "required") != nil {
			return "This field is required."
		}
	case model.ExpectingSignupPassword:
		if validate.Var(text, "required,min=8") != nil {
			return "Password must be at least 8 characters."
		}
	}

	return ""
}

// applyDraftInput кладет текст в поле черновика, которое ждет текущий шаг
func applyDraftInput(sess *model.Session, text string) (applied bool) {
	if sess.Draft == nil {
		return false
	}

	text = strings.TrimSpace(text)

	switch sess.State {
	case model.ExpectingBrokerName:
		sess.Draft.BrokerName = text
	case model.ExpectingAccountID:
		sess.Draft.AccountID = text
	case model.ExpectingAPIKey:
		sess.Draft.APIKey = text
	case model.ExpectingMaxPositionLimit:
		sess.Draft.MaxPositionLimit = parseNumber(text)
	case model.ExpectingSplittingTarget:
		sess.Draft.SplittingTarget = parseNumber(text)
	case model.ExpectingRiskPercentage:
		sess.Draft.RiskPercentage = parseNumber(text)
	case model.ExpectingDailyRiskPercentage:
		sess.Draft.DailyRiskPercentage = parseNumber(text)
	case model.ExpectingTimezone:
		sess.Draft.Timezone = text
	default:
		return false
	}

	sess.Draft.Revision++

	return true
}
