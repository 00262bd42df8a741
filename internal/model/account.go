package model

import "github.com/shopspring/decimal"

const (
	LocationLondon  = "London"
	LocationNewYork = "NewYork"
)

type AccountDraft struct {
	BrokerName          string
	AccountID           string
	APIKey              string
	Location            string
	MaxPositionLimit    float64
	SplittingTarget     float64
	RiskPercentage      float64
	AutoLotSizeSet      bool
	DailyRiskPercentage float64
	Timezone            string
	Revision            int // растет при каждом изменении, чтобы отбросить устаревший ответ verify
}

type AccountPreview struct {
	Name     string          `json:"name"`
	Broker   string          `json:"broker"`
	Balance  decimal.Decimal `json:"balance"`
	Equity   decimal.Decimal `json:"equity"`
	Currency string          `json:"currency"`
	Leverage int             `json:"leverage"`
	Platform string          `json:"platform"`
	Server   string          `json:"server"`
	Login    string          `json:"login"`
}

type AccountSummary struct {
	ID         string `json:"_id"`
	BrokerName string `json:"brokerName"`
	AccountID  string `json:"accountId"`
	Ordinal    int    `json:"-"`
}

type AccountsPage struct {
	Accounts    []AccountSummary
	CurPage     int
	HasNextPage bool
	Total       int
}
