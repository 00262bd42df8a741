package telegram

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/data/session"
	"github.com/KotFed0t/tradedash_bot/internal/converter/telebotConverter"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi"
	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/internal/model/tg/tgCallback"
	"github.com/KotFed0t/tradedash_bot/internal/service"
	"github.com/KotFed0t/tradedash_bot/internal/validation"
	"github.com/KotFed0t/tradedash_bot/utils"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg      = "Something went wrong. Please try again."
	busyMsg             = "Hold on, the previous request is still being processed."
	brokerRejectedMsg   = "❌ The broker rejected the credentials. Check the API key, account ID and location and try again."
	noDraftMsg          = "No account draft in progress. Use /add_account to start one."
	nothingToConfirmMsg = "Nothing to confirm yet, verify the draft first."
	notLoggedInMsg      = "You are not logged in."
)

const (
	promptLoginIdentifier = "Enter your email or username:"
	promptLoginPassword   = "Enter your password:"
	promptSignupEmail     = "Enter your email:"
	promptSignupMobile    = "Enter your mobile number in international format (e.g. +15551234567):"
	promptSignupFirstName = "Enter your first name:"
	promptSignupLastName  = "Enter your last name:"
	promptSignupPassword  = "Choose a password (at least 8 characters):"
	promptBrokerName      = "Enter the broker name:"
	promptAccountID       = "Enter the account ID:"
	promptAPIKey          = "Enter the API key:"
	promptMaxPosition     = "Enter the max position limit:"
	promptSplitting       = "Enter the splitting target:"
	promptRisk            = "Enter the risk percentage:"
	promptDailyRisk       = "Enter the daily risk percentage (send 0 to skip):"
	promptTimezone        = "Enter the timezone (e.g. Europe/London):"
)

type DashboardService interface {
	Login(ctx context.Context, chatID int64, creds model.Credentials) (token string, message string, err error)
	Signup(ctx context.Context, chatID int64, profile model.SignupProfile) (token string, err error)
	Logout(ctx context.Context, token string)
	EnsureSession(ctx context.Context, token string) error
	Accounts(ctx context.Context, token string, page int) (model.AccountsPage, error)
	AccountByID(ctx context.Context, token string, accountID string) (model.AccountSummary, error)
	VerifyAccount(ctx context.Context, chatID int64, token string, draft model.AccountDraft) (model.AccountPreview, error)
	ConfirmAccount(ctx context.Context, chatID int64, token string, draft model.AccountDraft) error
	ExportAccountsReport(ctx context.Context, token string) (file []byte, filename string, downloadLink string, err error)
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	SetSession(ctx context.Context, key string, session model.Session) error
	ClearSession(ctx context.Context, key string) error
}

type Controller struct {
	cfg     *config.Config
	service DashboardService
	session Session
}

func NewController(cfg *config.Config, service DashboardService, session Session) *Controller {
	return &Controller{
		cfg:     cfg,
		service: service,
		session: session,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	// живая сессия сразу ведет на дашборд, гость видит экран входа
	if chatSession.Token != "" {
		if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
			return ctrl.handleSessionErr(ctx, c, err)
		}
		return ctrl.renderDashboard(ctx, c, chatSession)
	}

	text, markup := telebotConverter.WelcomeResponse()
	return c.Send(text, markup)
}

func (ctrl *Controller) InitLogin(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.State = model.ExpectingLoginIdentifier
	chatSession.LoginIdentifier = ""

	return ctrl.saveAndPrompt(ctx, c, chatSession, promptLoginIdentifier)
}

func (ctrl *Controller) ProcessLoginIdentifier(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if msg := authInputError(chatSession, c.Message().Text); msg != "" {
		return c.Send(msg)
	}

	chatSession.LoginIdentifier = strings.TrimSpace(c.Message().Text)
	chatSession.State = model.ExpectingLoginPassword

	return ctrl.saveAndPrompt(ctx, c, chatSession, promptLoginPassword)
}

func (ctrl *Controller) ProcessLoginPassword(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	password := c.Message().Text
	if msg := authInputError(chatSession, password); msg != "" {
		return c.Send(msg)
	}

	// сообщение с паролем убираем из чата
	_ = c.Delete()

	creds := model.Credentials{Identifier: chatSession.LoginIdentifier, Password: password}

	token, message, err := ctrl.service.Login(ctx, c.Chat().ID, creds)
	if err != nil {
		return c.Send(userMessageFromErr(err))
	}

	// свежий логин начинает сессию с чистого листа
	freshSession := model.Session{Token: token, AccountsPage: 1}
	if err := ctrl.saveSession(ctx, c, freshSession); err != nil {
		return c.Send(internalErrMsg)
	}

	reply := "✅ Logged in successfully."
	if message != "" {
		reply += "\n" + message
	}
	_ = c.Send(reply)

	return ctrl.renderDashboard(ctx, c, freshSession)
}

func (ctrl *Controller) InitSignup(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.Signup = &model.SignupDraft{}
	chatSession.State = model.ExpectingSignupEmail

	return ctrl.saveAndPrompt(ctx, c, chatSession, promptSignupEmail)
}

func (ctrl *Controller) ProcessSignupInput(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Signup == nil {
		chatSession.State = model.DefaultState
		_ = ctrl.saveSession(ctx, c, chatSession)
		return c.Send("Use /signup to begin.")
	}

	text := c.Message().Text
	if msg := authInputError(chatSession, text); msg != "" {
		return c.Send(msg)
	}

	switch chatSession.State {
	case model.ExpectingSignupEmail:
		chatSession.Signup.Email = strings.TrimSpace(text)
		chatSession.State = model.ExpectingSignupMobile
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptSignupMobile)
	case model.ExpectingSignupMobile:
		chatSession.Signup.Mobile = strings.TrimSpace(text)
		chatSession.State = model.ExpectingSignupFirstName
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptSignupFirstName)
	case model.ExpectingSignupFirstName:
		chatSession.Signup.FirstName = strings.TrimSpace(text)
		chatSession.State = model.ExpectingSignupLastName
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptSignupLastName)
	case model.ExpectingSignupLastName:
		chatSession.Signup.LastName = strings.TrimSpace(text)
		chatSession.State = model.ExpectingSignupPassword
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptSignupPassword)
	case model.ExpectingSignupPassword:
		// сообщение с паролем убираем из чата
		_ = c.Delete()

		profile := model.SignupProfile{
			Email:     chatSession.Signup.Email,
			Mobile:    chatSession.Signup.Mobile,
			Password:  text,
			FirstName: chatSession.Signup.FirstName,
			LastName:  chatSession.Signup.LastName,
		}

		token, err := ctrl.service.Signup(ctx, c.Chat().ID, profile)
		if err != nil {
			return c.Send(userMessageFromErr(err))
		}

		freshSession := model.Session{Token: token, AccountsPage: 1}
		if err := ctrl.saveSession(ctx, c, freshSession); err != nil {
			return c.Send(internalErrMsg)
		}

		_ = c.Send("🎉 Account created, you are logged in!")

		return ctrl.renderDashboard(ctx, c, freshSession)
	}

	return nil
}

func (ctrl *Controller) Dashboard(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	return ctrl.renderDashboard(ctx, c, chatSession)
}

func (ctrl *Controller) DashboardPage(c tele.Context, pageStr string) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 1 {
		page = 1
	}

	chatSession.AccountsPage = page
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return ctrl.renderDashboard(ctx, c, chatSession)
}

func (ctrl *Controller) AccountDetails(c tele.Context, accountID string) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	account, err := ctrl.service.AccountByID(ctx, chatSession.Token, accountID)
	if err != nil {
		if errors.Is(err, externalApi.ErrUnauthorized) {
			return ctrl.handleExpiredSession(ctx, c)
		}
		if errors.Is(err, service.ErrNotFound) {
			_ = c.Send("Account not found, it may have been removed.")
			return ctrl.renderDashboard(ctx, c, chatSession)
		}
		return c.Send(internalErrMsg)
	}

	chatSession.ActiveAccountID = account.ID
	_ = ctrl.saveSession(ctx, c, chatSession)

	text, markup := telebotConverter.AccountDetailsResponse(account)
	return ctrl.replyOrEdit(c, text, markup)
}

func (ctrl *Controller) InitAddAccount(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	chatSession.Draft = &model.AccountDraft{}
	chatSession.Preview = nil
	chatSession.Phase = model.PhaseIdle
	chatSession.Editing = false
	chatSession.State = model.ExpectingBrokerName

	return ctrl.saveAndPrompt(ctx, c, chatSession, promptBrokerName)
}

func (ctrl *Controller) ProcessDraftInput(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Draft == nil {
		chatSession.State = model.DefaultState
		_ = ctrl.saveSession(ctx, c, chatSession)
		return c.Send(noDraftMsg)
	}

	if chatSession.State == model.ExpectingAPIKey {
		// сообщение с секретом убираем из чата
		_ = c.Delete()
	}

	prevState := chatSession.State
	if !applyDraftInput(&chatSession, c.Message().Text) {
		return c.Send(internalErrMsg)
	}

	ctrl.dropStalePreview(&chatSession)

	if chatSession.Editing {
		// точечная правка возвращает к ревью, если только дневной риск не потребовал таймзону
		if prevState == model.ExpectingDailyRiskPercentage && chatSession.Draft.DailyRiskPercentage > 0 && chatSession.Draft.Timezone == "" {
			chatSession.State = model.ExpectingTimezone
			return ctrl.saveAndPrompt(ctx, c, chatSession, promptTimezone)
		}

		chatSession.Editing = false
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return ctrl.sendDraftReview(c, chatSession)
	}

	switch prevState {
	case model.ExpectingBrokerName:
		chatSession.State = model.ExpectingAccountID
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptAccountID)
	case model.ExpectingAccountID:
		chatSession.State = model.ExpectingAPIKey
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptAPIKey)
	case model.ExpectingAPIKey:
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		text, markup := telebotConverter.LocationResponse()
		return c.Send(text, markup)
	case model.ExpectingMaxPositionLimit:
		chatSession.State = model.ExpectingSplittingTarget
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptSplitting)
	case model.ExpectingSplittingTarget:
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		text, markup := telebotConverter.AutoLotResponse()
		return c.Send(text, markup)
	case model.ExpectingRiskPercentage:
		chatSession.State = model.ExpectingDailyRiskPercentage
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptDailyRisk)
	case model.ExpectingDailyRiskPercentage:
		if chatSession.Draft.DailyRiskPercentage > 0 {
			chatSession.State = model.ExpectingTimezone
			return ctrl.saveAndPrompt(ctx, c, chatSession, promptTimezone)
		}
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return ctrl.sendDraftReview(c, chatSession)
	case model.ExpectingTimezone:
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return ctrl.sendDraftReview(c, chatSession)
	}

	return nil
}

func (ctrl *Controller) ProcessLocationSelection(c tele.Context, location string) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	if location != model.LocationLondon && location != model.LocationNewYork {
		return nil
	}

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Draft == nil {
		return c.Send(noDraftMsg)
	}

	chatSession.Draft.Location = location
	chatSession.Draft.Revision++
	ctrl.dropStalePreview(&chatSession)

	// гасим клавиатуру, чтобы поздние клики не путали мастер
	_ = c.Edit("📍 Location: " + location)

	if chatSession.Editing {
		chatSession.Editing = false
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		return ctrl.sendDraftReview(c, chatSession)
	}

	chatSession.State = model.ExpectingMaxPositionLimit
	return ctrl.saveAndPrompt(ctx, c, chatSession, promptMaxPosition)
}

func (ctrl *Controller) ProcessAutoLotSelection(c tele.Context, mode string) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Draft == nil {
		return c.Send(noDraftMsg)
	}

	enabled := mode == "on"
	chatSession.Draft.AutoLotSizeSet = enabled
	if !enabled {
		chatSession.Draft.RiskPercentage = 0
	}
	chatSession.Draft.Revision++
	ctrl.dropStalePreview(&chatSession)

	if enabled {
		_ = c.Edit("⚙️ Auto Lot Size: on")
		chatSession.State = model.ExpectingRiskPercentage
		return ctrl.saveAndPrompt(ctx, c, chatSession, promptRisk)
	}

	_ = c.Edit("⚙️ Auto Lot Size: off")
	chatSession.State = model.ExpectingDailyRiskPercentage
	return ctrl.saveAndPrompt(ctx, c, chatSession, promptDailyRisk)
}

func (ctrl *Controller) InitFieldEdit(c tele.Context, field string) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Draft == nil {
		return c.Send(noDraftMsg)
	}

	chatSession.Editing = true

	var prompt string
	switch field {
	case tgCallback.FieldBrokerName:
		chatSession.State = model.ExpectingBrokerName
		prompt = promptBrokerName
	case tgCallback.FieldAccountID:
		chatSession.State = model.ExpectingAccountID
		prompt = promptAccountID
	case tgCallback.FieldAPIKey:
		chatSession.State = model.ExpectingAPIKey
		prompt = promptAPIKey
	case tgCallback.FieldLocation:
		chatSession.State = model.DefaultState
		if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
			return c.Send(internalErrMsg)
		}
		text, markup := telebotConverter.LocationResponse()
		return c.Send(text, markup)
	case tgCallback.FieldMaxPositionLimit:
		chatSession.State = model.ExpectingMaxPositionLimit
		prompt = promptMaxPosition
	case tgCallback.FieldSplittingTarget:
		chatSession.State = model.ExpectingSplittingTarget
		prompt = promptSplitting
	case tgCallback.FieldRiskPercentage:
		chatSession.State = model.ExpectingRiskPercentage
		prompt = promptRisk
	case tgCallback.FieldDailyRiskPercentage:
		chatSession.State = model.ExpectingDailyRiskPercentage
		prompt = promptDailyRisk
	case tgCallback.FieldTimezone:
		chatSession.State = model.ExpectingTimezone
		prompt = promptTimezone
	default:
		return nil
	}

	return ctrl.saveAndPrompt(ctx, c, chatSession, prompt)
}

func (ctrl *Controller) VerifyDraft(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Draft == nil {
		return c.Send(noDraftMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	revision := chatSession.Draft.Revision

	preview, err := ctrl.service.VerifyAccount(ctx, c.Chat().ID, chatSession.Token, *chatSession.Draft)
	if err != nil {
		if errors.Is(err, externalApi.ErrUnauthorized) {
			return ctrl.handleExpiredSession(ctx, c)
		}
		return c.Send(userMessageFromErr(err))
	}

	// пока ходили в сеть, черновик могли поменять - такой ответ выбрасываем
	current, err := ctrl.session.GetSession(ctx, ctrl.chatKey(c))
	if err != nil || current.Draft == nil || current.Draft.Revision != revision {
		slog.Warn("discarding stale verify response", slog.String("rqID", rqID), slog.Int64("chatID", c.Chat().ID))
		return nil
	}

	current.Phase = model.PhaseVerified
	current.Preview = &preview
	if err := ctrl.saveSession(ctx, c, current); err != nil {
		return c.Send(internalErrMsg)
	}

	text, markup := telebotConverter.AccountPreviewResponse(preview)
	return ctrl.replyOrEdit(c, text, markup)
}

func (ctrl *Controller) ConfirmDraft(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	// подтверждать можно только проверенный и не тронутый после проверки черновик
	if chatSession.Draft == nil || chatSession.Phase != model.PhaseVerified {
		return c.Send(nothingToConfirmMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	err = ctrl.service.ConfirmAccount(ctx, c.Chat().ID, chatSession.Token, *chatSession.Draft)
	if err != nil {
		if errors.Is(err, externalApi.ErrUnauthorized) {
			return ctrl.handleExpiredSession(ctx, c)
		}
		// неудача оставляет превью на месте, подтверждение можно повторить
		return c.Send(userMessageFromErr(err))
	}

	current, err := ctrl.session.GetSession(ctx, ctrl.chatKey(c))
	if err != nil {
		current = chatSession
	}

	current.Phase = model.PhaseConfirmed
	current.Draft = nil
	current.Preview = nil
	current.Editing = false
	current.State = model.DefaultState
	if err := ctrl.saveSession(ctx, c, current); err != nil {
		return c.Send(internalErrMsg)
	}

	if err := ctrl.renderDashboard(ctx, c, current); err != nil {
		return err
	}

	return c.Send("🎉 Account added to your dashboard!")
}

func (ctrl *Controller) CancelPreview(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Draft == nil {
		return c.Send(noDraftMsg)
	}

	// отмена локальная, в сеть не ходим
	chatSession.Phase = model.PhaseIdle
	chatSession.Preview = nil
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	text, markup := telebotConverter.DraftReviewResponse(*chatSession.Draft)
	return ctrl.replyOrEdit(c, text, markup)
}

func (ctrl *Controller) DiscardDraft(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	chatSession.Draft = nil
	chatSession.Preview = nil
	chatSession.Phase = model.PhaseIdle
	chatSession.Editing = false
	chatSession.State = model.DefaultState
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return ctrl.renderDashboard(ctx, c, chatSession)
}

func (ctrl *Controller) ExportReport(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if err := ctrl.service.EnsureSession(ctx, chatSession.Token); err != nil {
		return ctrl.handleSessionErr(ctx, c, err)
	}

	file, filename, downloadLink, err := ctrl.service.ExportAccountsReport(ctx, chatSession.Token)
	if err != nil {
		if errors.Is(err, externalApi.ErrUnauthorized) {
			return ctrl.handleExpiredSession(ctx, c)
		}
		if errors.Is(err, service.ErrNoAccounts) {
			return c.Send("You have no accounts to export yet.")
		}
		return c.Send(internalErrMsg)
	}

	if downloadLink != "" {
		return c.Send("📤 The report is too large for Telegram, download it here: " + downloadLink)
	}

	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(file)),
		FileName: filename,
	}
	return c.Send(doc)
}

func (ctrl *Controller) Logout(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	ctrl.ack(c)

	chatSession, err := ctrl.getSession(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	if chatSession.Token == "" {
		return c.Send(notLoggedInMsg)
	}

	ctrl.service.Logout(ctx, chatSession.Token)

	if err := ctrl.session.ClearSession(ctx, ctrl.chatKey(c)); err != nil {
		return c.Send(internalErrMsg)
	}

	text, markup := telebotConverter.WelcomeResponse()
	_ = c.Send("👋 You have been logged out.")
	return ctrl.replyOrEdit(c, text, markup)
}

func (ctrl *Controller) chatKey(c tele.Context) string {
	return strconv.FormatInt(c.Chat().ID, 10)
}

func (ctrl *Controller) getSession(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, ctrl.chatKey(c))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.Session{}, nil
		}
		slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return model.Session{}, err
	}

	return chatSession, nil
}

func (ctrl *Controller) saveSession(ctx context.Context, c tele.Context, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	err := ctrl.session.SetSession(ctx, ctrl.chatKey(c), chatSession)
	if err != nil {
		slog.Error("got error from session.SetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (ctrl *Controller) saveAndPrompt(ctx context.Context, c tele.Context, chatSession model.Session, prompt string) error {
	if err := ctrl.saveSession(ctx, c, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}
	return c.Send(prompt)
}

// правка черновика обнуляет результат прошлой проверки
func (ctrl *Controller) dropStalePreview(chatSession *model.Session) {
	if chatSession.Phase != model.PhaseIdle {
		chatSession.Phase = model.PhaseIdle
		chatSession.Preview = nil
	}
}

func (ctrl *Controller) ack(c tele.Context) {
	if c.Callback() != nil {
		_ = c.Respond()
	}
}

// на колбэк отвечаем правкой исходного сообщения, на команду - новым
func (ctrl *Controller) replyOrEdit(c tele.Context, text string, markup *tele.ReplyMarkup) error {
	if c.Callback() != nil {
		if err := c.Edit(text, markup); err == nil {
			return nil
		}
	}
	return c.Send(text, markup)
}

func (ctrl *Controller) sendDraftReview(c tele.Context, chatSession model.Session) error {
	text, markup := telebotConverter.DraftReviewResponse(*chatSession.Draft)
	return c.Send(text, markup)
}

func (ctrl *Controller) renderDashboard(ctx context.Context, c tele.Context, chatSession model.Session) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	page := chatSession.AccountsPage
	if page < 1 {
		page = 1
	}

	accountsPage, err := ctrl.service.Accounts(ctx, chatSession.Token, page)
	if err != nil {
		if errors.Is(err, externalApi.ErrUnauthorized) {
			return ctrl.handleExpiredSession(ctx, c)
		}
		slog.Error("got error from service.Accounts", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	if accountsPage.CurPage != chatSession.AccountsPage {
		chatSession.AccountsPage = accountsPage.CurPage
		_ = ctrl.saveSession(ctx, c, chatSession)
	}

	text, markup := telebotConverter.DashboardResponse(accountsPage)
	return ctrl.replyOrEdit(c, text, markup)
}

func (ctrl *Controller) handleSessionErr(ctx context.Context, c tele.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNoSession):
		text, markup := telebotConverter.AuthRequiredResponse(false)
		return c.Send(text, markup)
	case errors.Is(err, service.ErrSessionExpired):
		return ctrl.handleExpiredSession(ctx, c)
	default:
		return c.Send(internalErrMsg)
	}
}

func (ctrl *Controller) handleExpiredSession(ctx context.Context, c tele.Context) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if err := ctrl.session.ClearSession(ctx, ctrl.chatKey(c)); err != nil {
		slog.Error("got error from session.ClearSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}

	text, markup := telebotConverter.AuthRequiredResponse(true)
	return c.Send(text, markup)
}

func userMessageFromErr(err error) string {
	var ruleErr *validation.RuleError
	var apiErr *externalApi.APIError

	switch {
	case errors.As(err, &ruleErr):
		return ruleErr.Message
	case errors.Is(err, service.ErrOperationInFlight):
		return busyMsg
	case errors.Is(err, externalApi.ErrAccountRejected):
		return brokerRejectedMsg
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	default:
		return internalErrMsg
	}
}
