package telebotConverter

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KotFed0t/tradedash_bot/internal/model"
)

func TestDraftReviewResponse_MasksAPIKey(t *testing.T) {
	draft := model.AccountDraft{
		BrokerName:       "IC Markets",
		AccountID:        "800123",
		APIKey:           "super-secret-key",
		Location:         model.LocationLondon,
		MaxPositionLimit: 10,
		SplittingTarget:  2.5,
	}

	text, markup := DraftReviewResponse(draft)

	assert.NotContains(t, text, "super-secret-key")
	assert.Contains(t, text, "API Key: "+maskedSecret)
	assert.Contains(t, text, "Broker Name: IC Markets")
	assert.Contains(t, text, "Splitting Target: 2.5")
	assert.Contains(t, text, "Auto Lot Size: off")
	assert.Contains(t, text, "Daily Risk Percentage: not set")
	require.NotNil(t, markup.InlineKeyboard)
}

func TestDraftReviewResponse_AutoLotAndDailyRisk(t *testing.T) {
	draft := model.AccountDraft{
		BrokerName:          "IC Markets",
		AccountID:           "800123",
		APIKey:              "k",
		Location:            model.LocationNewYork,
		MaxPositionLimit:    10,
		SplittingTarget:     2,
		AutoLotSizeSet:      true,
		RiskPercentage:      1.5,
		DailyRiskPercentage: 50,
		Timezone:            "Europe/London",
	}

	text, _ := DraftReviewResponse(draft)

	assert.Contains(t, text, "Auto Lot Size: on (risk 1.5%)")
	assert.Contains(t, text, "Daily Risk Percentage: 50%")
	assert.Contains(t, text, "Timezone: Europe/London")
}

func TestAccountPreviewResponse(t *testing.T) {
	preview := model.AccountPreview{
		Name:     "Main",
		Broker:   "IC Markets",
		Balance:  decimal.NewFromFloat(10250.555),
		Equity:   decimal.NewFromInt(10180),
		Currency: "USD",
		Leverage: 500,
		Platform: "mt5",
		Server:   "ICMarkets-Live01",
		Login:    "800123",
	}

	text, markup := AccountPreviewResponse(preview)

	assert.Contains(t, text, "Balance: 10250.56 USD")
	assert.Contains(t, text, "Equity: 10180.00 USD")
	assert.Contains(t, text, "Leverage: 1:500")
	require.NotNil(t, markup.InlineKeyboard)

	// превью предлагает ровно два действия: сохранить или вернуться к черновику
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Len(t, markup.InlineKeyboard[0], 2)
}

func TestDashboardResponse_Empty(t *testing.T) {
	text, markup := DashboardResponse(model.AccountsPage{})

	assert.Contains(t, text, "no connected accounts")
	require.NotNil(t, markup.InlineKeyboard)
}

func TestDashboardResponse_Pagination(t *testing.T) {
	page := model.AccountsPage{
		Accounts: []model.AccountSummary{
			{ID: "id3", BrokerName: "Broker", AccountID: "acc3", Ordinal: 3},
			{ID: "id4", BrokerName: "Broker", AccountID: "acc4", Ordinal: 4},
		},
		CurPage:     2,
		HasNextPage: true,
		Total:       5,
	}

	text, markup := DashboardResponse(page)

	assert.Contains(t, text, "5 total")
	assert.Contains(t, text, "3. Broker")
	assert.Contains(t, text, "4. Broker")
	require.NotNil(t, markup.InlineKeyboard)

	var uniques []string
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			uniques = append(uniques, btn.Unique)
		}
	}

	assert.Contains(t, uniques, "select_account:id3")
	assert.Contains(t, uniques, "prev_page:1")
	assert.Contains(t, uniques, "next_page:3")
}

func TestDashboardResponse_FirstPageHasNoPrevButton(t *testing.T) {
	page := model.AccountsPage{
		Accounts:    []model.AccountSummary{{ID: "id1", BrokerName: "Broker", AccountID: "acc1", Ordinal: 1}},
		CurPage:     1,
		HasNextPage: false,
		Total:       1,
	}

	_, markup := DashboardResponse(page)

	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			assert.NotContains(t, btn.Unique, "prev_page:")
			assert.NotContains(t, btn.Unique, "next_page:")
		}
	}
}

func TestAuthRequiredResponse(t *testing.T) {
	text, _ := AuthRequiredResponse(true)
	assert.Contains(t, text, "session has expired")

	text, _ = AuthRequiredResponse(false)
	assert.Contains(t, text, "log in to continue")
}
