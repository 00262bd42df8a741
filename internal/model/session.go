package model

type state int

const (
	DefaultState state = iota
	ExpectingLoginIdentifier
	ExpectingLoginPassword
	ExpectingSignupEmail
	ExpectingSignupMobile
	ExpectingSignupFirstName
	ExpectingSignupLastName
	ExpectingSignupPassword
	ExpectingBrokerName
	ExpectingAccountID
	ExpectingAPIKey
	ExpectingMaxPositionLimit
	ExpectingSplittingTarget
	ExpectingRiskPercentage
	ExpectingDailyRiskPercentage
	ExpectingTimezone
)

// фаза двухшагового добавления счета: verify возвращает превью, confirm сохраняет.
// правка черновика в любой фазе откатывает ее в PhaseIdle
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseVerified
	PhaseConfirmed
)

type Session struct {
	Token           string
	State           state
	Phase           Phase
	LoginIdentifier string
	Signup          *SignupDraft
	Draft           *AccountDraft
	Preview         *AccountPreview
	Editing         bool // правим одно поле черновика, после ввода возвращаемся к ревью
	ActiveAccountID string
	AccountsPage    int
}
