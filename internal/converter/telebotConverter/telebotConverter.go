package telebotConverter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/internal/model/tg/tgCallback"
	tele "gopkg.in/telebot.v4"
)

const maskedSecret = "••••••"

func WelcomeResponse() (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("🔑 Log in", tgCallback.Login),
			markup.Data("📝 Sign up", tgCallback.Signup),
		),
	)
	return "👋 Welcome to TradeDash!\nLog in or create an account to manage your trading accounts.", markup
}

func DraftReviewResponse(draft model.AccountDraft) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	var sb strings.Builder

	sb.WriteString("🧾 New account draft\n\n")
	sb.WriteString(fmt.Sprintf("▸ Broker Name: %s\n", draft.BrokerName))
	sb.WriteString(fmt.Sprintf("▸ Account ID: %s\n", draft.AccountID))
	sb.WriteString(fmt.Sprintf("▸ API Key: %s\n", maskedSecret))
	sb.WriteString(fmt.Sprintf("▸ Location: %s\n", draft.Location))
	sb.WriteString(fmt.Sprintf("▸ Max Position Limit: %s\n", formatNumber(draft.MaxPositionLimit)))
	sb.WriteString(fmt.Sprintf("▸ Splitting Target: %s\n", formatNumber(draft.SplittingTarget)))

	if draft.AutoLotSizeSet {
		sb.WriteString(fmt.Sprintf("▸ Auto Lot Size: on (risk %s%%)\n", formatNumber(draft.RiskPercentage)))
	} else {
		sb.WriteString("▸ Auto Lot Size: off\n")
	}

	if draft.DailyRiskPercentage > 0 {
		sb.WriteString(fmt.Sprintf("▸ Daily Risk Percentage: %s%%\n", formatNumber(draft.DailyRiskPercentage)))
		sb.WriteString(fmt.Sprintf("▸ Timezone: %s\n", draft.Timezone))
	} else {
		sb.WriteString("▸ Daily Risk Percentage: not set\n")
	}

	sb.WriteString("\nVerify the credentials with the broker before saving.")

	editBtns := []tele.Btn{
		markup.Data("✏️ Broker", tgCallback.EditFieldPrefix+tgCallback.FieldBrokerName),
		markup.Data("✏️ Account ID", tgCallback.EditFieldPrefix+tgCallback.FieldAccountID),
		markup.Data("✏️ API Key", tgCallback.EditFieldPrefix+tgCallback.FieldAPIKey),
		markup.Data("✏️ Location", tgCallback.EditFieldPrefix+tgCallback.FieldLocation),
		markup.Data("✏️ Max Limit", tgCallback.EditFieldPrefix+tgCallback.FieldMaxPositionLimit),
		markup.Data("✏️ Splitting", tgCallback.EditFieldPrefix+tgCallback.FieldSplittingTarget),
		markup.Data("✏️ Risk %", tgCallback.EditFieldPrefix+tgCallback.FieldRiskPercentage),
		markup.Data("✏️ Daily Risk", tgCallback.EditFieldPrefix+tgCallback.FieldDailyRiskPercentage),
		markup.Data("✏️ Timezone", tgCallback.EditFieldPrefix+tgCallback.FieldTimezone),
	}

	rows := []tele.Row{markup.Row(markup.Data("✅ Verify", tgCallback.VerifyDraft))}
	for i := 0; i < len(editBtns); i += 3 {
		end := i + 3
		if end > len(editBtns) {
			end = len(editBtns)
		}
		rows = append(rows, markup.Row(editBtns[i:end]...))
	}
	rows = append(rows, markup.Row(markup.Data("🗑 Discard", tgCallback.DiscardDraft)))

	markup.Inline(rows...)

	return sb.String(), markup
}

func AccountPreviewResponse(preview model.AccountPreview) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	var sb strings.Builder

	sb.WriteString("✅ Broker accepted the credentials\n\n")
	sb.WriteString(fmt.Sprintf("🏦 %s\n", preview.Name))
	sb.WriteString(fmt.Sprintf("▸ Broker: %s\n", preview.Broker))
	sb.WriteString(fmt.Sprintf("▸ Balance: %s %s\n", preview.Balance.StringFixed(2), preview.Currency))
	sb.WriteString(fmt.Sprintf("▸ Equity: %s %s\n", preview.Equity.StringFixed(2), preview.Currency))
	sb.WriteString(fmt.Sprintf("▸ Leverage: 1:%d\n", preview.Leverage))
	sb.WriteString(fmt.Sprintf("▸ Platform: %s\n", preview.Platform))
	sb.WriteString(fmt.Sprintf("▸ Server: %s\n", preview.Server))
	sb.WriteString(fmt.Sprintf("▸ Login: %s\n", preview.Login))
	sb.WriteString("\nSave this account to your dashboard?")

	markup.Inline(
		markup.Row(
			markup.Data("✅ Confirm", tgCallback.ConfirmDraft),
			markup.Data("↩️ Cancel", tgCallback.CancelPreview),
		),
	)

	return sb.String(), markup
}

func DashboardResponse(page model.AccountsPage) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}

	if page.Total == 0 {
		markup.Inline(
			markup.Row(markup.Data("➕ Add account", tgCallback.AddAccount)),
			markup.Row(markup.Data("🚪 Log out", tgCallback.Logout)),
		)
		return "📊 You have no connected accounts yet.", markup
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 Your trading accounts (%d total)\n\n", page.Total))

	accountBtns := make([]tele.Btn, 0, len(page.Accounts))
	for _, account := range page.Accounts {
		sb.WriteString(fmt.Sprintf("%d. %s — %s\n", account.Ordinal, account.BrokerName, account.AccountID))
		accountBtns = append(accountBtns, markup.Data(account.AccountID, tgCallback.SelectAccountPrefix+account.ID))
	}

	paginationBtns := make([]tele.Btn, 0, 2)
	if page.CurPage > 1 {
		paginationBtns = append(paginationBtns, markup.Data("⬅️", tgCallback.PrevPagePrefix+strconv.Itoa(page.CurPage-1)))
	}
	if page.HasNextPage {
		paginationBtns = append(paginationBtns, markup.Data("➡️", tgCallback.NextPagePrefix+strconv.Itoa(page.CurPage+1)))
	}

	rows := []tele.Row{markup.Row(accountBtns...)}
	if len(paginationBtns) > 0 {
		rows = append(rows, markup.Row(paginationBtns...))
	}
	rows = append(rows,
		markup.Row(
			markup.Data("➕ Add account", tgCallback.AddAccount),
			markup.Data("📤 Export", tgCallback.ExportReport),
		),
		markup.Row(markup.Data("🚪 Log out", tgCallback.Logout)),
	)

	markup.Inline(rows...)

	return sb.String(), markup
}

func AccountDetailsResponse(account model.AccountSummary) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("🏦 %s\n", account.BrokerName))
	sb.WriteString(fmt.Sprintf("▸ Account ID: %s\n", account.AccountID))
	sb.WriteString(fmt.Sprintf("▸ Internal ID: %s\n", account.ID))

	markup.Inline(markup.Row(markup.Data("⬅️ Back to dashboard", tgCallback.Dashboard)))

	return sb.String(), markup
}

func AuthRequiredResponse(expired bool) (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("🔑 Log in", tgCallback.Login),
			markup.Data("📝 Sign up", tgCallback.Signup),
		),
	)

	if expired {
		return "Your session has expired. Please log in again.", markup
	}
	return "Please log in to continue.", markup
}

func LocationResponse() (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("🇬🇧 London", tgCallback.LocationPrefix+model.LocationLondon),
			markup.Data("🇺🇸 New York", tgCallback.LocationPrefix+model.LocationNewYork),
		),
	)
	return "Select the broker server location:", markup
}

func AutoLotResponse() (text string, markup *tele.ReplyMarkup) {
	markup = &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(
			markup.Data("⚙️ Enable", tgCallback.AutoLotPrefix+"on"),
			markup.Data("Skip", tgCallback.AutoLotPrefix+"off"),
		),
	)
	return "Enable automatic lot size based on risk percentage?", markup
}

// числа показываем без хвостовых нулей
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
