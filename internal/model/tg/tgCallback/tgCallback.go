package tgCallback

// Callbacks buttons prefixes
const (
	Login         string = "login"
	Signup        string = "signup"
	Dashboard     string = "dashboard"
	AddAccount    string = "add_account"
	ExportReport  string = "export_report"
	Logout        string = "logout"
	VerifyDraft   string = "verify_draft"   // отправить черновик на проверку брокером
	ConfirmDraft  string = "confirm_draft"  // сохранить проверенный счет
	CancelPreview string = "cancel_preview" // вернуться из превью к черновику
	DiscardDraft  string = "discard_draft"

	LocationPrefix      string = "location:"
	AutoLotPrefix       string = "auto_lot:"
	EditFieldPrefix     string = "edit_field:"
	SelectAccountPrefix string = "select_account:"
	PrevPagePrefix      string = "prev_page:"
	NextPagePrefix      string = "next_page:"
)

// payload для EditFieldPrefix
const (
	FieldBrokerName          string = "broker_name"
	FieldAccountID           string = "account_id"
	FieldAPIKey              string = "api_key"
	FieldLocation            string = "location"
	FieldMaxPositionLimit    string = "max_position_limit"
	FieldSplittingTarget     string = "splitting_target"
	FieldRiskPercentage      string = "risk_percentage"
	FieldDailyRiskPercentage string = "daily_risk_percentage"
	FieldTimezone            string = "timezone"
)
