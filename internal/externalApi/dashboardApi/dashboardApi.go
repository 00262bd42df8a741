package dashboardApi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi"
	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/utils"
	"github.com/go-resty/resty/v2"
)

// такой текст сервер возвращает, когда брокер не принял креды или счет из другого региона
const rejectedCredentialsMarker = "invalid credentials or region"

type DashboardApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *DashboardApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.DashboardApi.Url)
	return &DashboardApi{client: client}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type signupRequest struct {
	Email     string `json:"email"`
	Mobile    string `json:"mobile"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type signupResponse struct {
	Token string `json:"token"`
}

type addAccountRequest struct {
	BrokerName          string  `json:"brokerName"`
	AccountID           string  `json:"accountId"`
	APIKey              string  `json:"apiKey"`
	Location            string  `json:"location"`
	MaxPositionLimit    float64 `json:"maxPositionLimit"`
	SplittingTarget     float64 `json:"splittingTarget"`
	RiskPercentage      float64 `json:"riskPercentage"`
	AutoLotSizeSet      bool    `json:"autoLotSizeSet"`
	DailyRiskPercentage float64 `json:"dailyRiskPercentage"`
	Timezone            string  `json:"timezone"`
}

type addAccountResponse struct {
	AccountInfo *model.AccountPreview `json:"accountInfo"`
	Error       string                `json:"error"`
}

type confirmAccountResponse struct {
	Error string `json:"error"`
}

type apiErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *DashboardApi) Login(ctx context.Context, creds model.Credentials) (token string, message string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.Login request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(loginRequest{Identifier: creds.Identifier, Password: creds.Password}).
		Post("/api/auth/login")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return "", "", err
	}

	if !resp.IsSuccess() {
		return "", "", a.errorFromResponse(resp)
	}

	loginResp := loginResponse{}
	err = json.Unmarshal(resp.Body(), &loginResp)
	if err != nil {
		slog.Error("can't unmarshal login response", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return "", "", err
	}

	if loginResp.Token == "" {
		slog.Error("login response without token", slog.String("rqID", rqID))
		return "", "", errors.New("login response without token")
	}

	slog.Debug("DashboardApi.Login request complete", slog.String("rqID", rqID))

	return loginResp.Token, loginResp.Message, nil
}

func (a *DashboardApi) Signup(ctx context.Context, profile model.SignupProfile) (token string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.Signup request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetBody(signupRequest{
			Email:     profile.Email,
			Mobile:    profile.Mobile,
			Password:  profile.Password,
			FirstName: profile.FirstName,
			LastName:  profile.LastName,
		}).
		Post("/api/auth/signup")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return "", err
	}

	if !resp.IsSuccess() {
		return "", a.errorFromResponse(resp)
	}

	signupResp := signupResponse{}
	err = json.Unmarshal(resp.Body(), &signupResp)
	if err != nil {
		slog.Error("can't unmarshal signup response", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return "", err
	}

	if signupResp.Token == "" {
		slog.Error("signup response without token", slog.String("rqID", rqID))
		return "", errors.New("signup response without token")
	}

	slog.Debug("DashboardApi.Signup request complete", slog.String("rqID", rqID))

	return signupResp.Token, nil
}

// любой не-2xx ответ считаем недействительной сессией
func (a *DashboardApi) VerifyToken(ctx context.Context, token string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.VerifyToken request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get("/api/auth/verify-token")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	if !resp.IsSuccess() {
		return externalApi.ErrUnauthorized
	}

	slog.Debug("DashboardApi.VerifyToken request complete", slog.String("rqID", rqID))

	return nil
}

func (a *DashboardApi) GetUserAccounts(ctx context.Context, token string) ([]model.AccountSummary, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.GetUserAccounts request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetAuthToken(token).
		Get("/api/accounts")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	if resp.StatusCode() == 401 {
		return nil, externalApi.ErrUnauthorized
	}

	if !resp.IsSuccess() {
		return nil, a.errorFromResponse(resp)
	}

	accounts := make([]model.AccountSummary, 0)
	err = json.Unmarshal(resp.Body(), &accounts)
	if err != nil {
		slog.Error("can't unmarshal accounts response", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return nil, err
	}

	slog.Debug("DashboardApi.GetUserAccounts request complete", slog.String("rqID", rqID), slog.Int("accounts", len(accounts)))

	return accounts, nil
}

// первый шаг добавления счета: сервер проверяет креды у брокера и возвращает превью, ничего не сохраняя
func (a *DashboardApi) AddAccount(ctx context.Context, token string, draft model.AccountDraft) (model.AccountPreview, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.AddAccount request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetAuthToken(token).
		SetBody(addAccountRequestFromDraft(draft)).
		Post("/api/accounts")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.AccountPreview{}, err
	}

	if resp.StatusCode() == 401 {
		return model.AccountPreview{}, externalApi.ErrUnauthorized
	}

	addResp := addAccountResponse{}
	err = json.Unmarshal(resp.Body(), &addResp)
	if err != nil {
		slog.Error("can't unmarshal addAccount response", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return model.AccountPreview{}, err
	}

	if addResp.Error != "" {
		if isRejectedCredentials(addResp.Error) {
			return model.AccountPreview{}, externalApi.ErrAccountRejected
		}
		return model.AccountPreview{}, &externalApi.APIError{StatusCode: resp.StatusCode(), Message: addResp.Error}
	}

	if !resp.IsSuccess() {
		return model.AccountPreview{}, a.errorFromResponse(resp)
	}

	if addResp.AccountInfo == nil {
		slog.Error("addAccount response without accountInfo", slog.String("rqID", rqID))
		return model.AccountPreview{}, errors.New("addAccount response without accountInfo")
	}

	slog.Debug("DashboardApi.AddAccount request complete", slog.String("rqID", rqID))

	return *addResp.AccountInfo, nil
}

// второй шаг: сохраняем счет, который прошел проверку в AddAccount
func (a *DashboardApi) ConfirmAccount(ctx context.Context, token string, draft model.AccountDraft) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.ConfirmAccount request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetAuthToken(token).
		SetBody(addAccountRequestFromDraft(draft)).
		Post("/api/accounts/confirm")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	if resp.StatusCode() == 401 {
		return externalApi.ErrUnauthorized
	}

	confirmResp := confirmAccountResponse{}
	if len(resp.Body()) > 0 {
		err = json.Unmarshal(resp.Body(), &confirmResp)
		if err != nil {
			slog.Error("can't unmarshal confirmAccount response", slog.String("err", err.Error()), slog.String("rqID", rqID))
			return err
		}
	}

	if confirmResp.Error != "" {
		if isRejectedCredentials(confirmResp.Error) {
			return externalApi.ErrAccountRejected
		}
		return &externalApi.APIError{StatusCode: resp.StatusCode(), Message: confirmResp.Error}
	}

	if !resp.IsSuccess() {
		return a.errorFromResponse(resp)
	}

	slog.Debug("DashboardApi.ConfirmAccount request complete", slog.String("rqID", rqID))

	return nil
}

func (a *DashboardApi) Logout(ctx context.Context, token string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("start DashboardApi.Logout request", slog.String("rqID", rqID))

	resp, err := a.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		Post("/api/auth/logout")

	if err != nil {
		slog.Error("error while dialing dashboard api", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return err
	}

	if !resp.IsSuccess() {
		return a.errorFromResponse(resp)
	}

	slog.Debug("DashboardApi.Logout request complete", slog.String("rqID", rqID))

	return nil
}

func (a *DashboardApi) errorFromResponse(resp *resty.Response) error {
	errResp := apiErrorResponse{}
	if err := json.Unmarshal(resp.Body(), &errResp); err == nil {
		msg := errResp.Error
		if msg == "" {
			msg = errResp.Message
		}
		if msg != "" {
			return &externalApi.APIError{StatusCode: resp.StatusCode(), Message: msg}
		}
	}
	return &externalApi.APIError{StatusCode: resp.StatusCode()}
}

func addAccountRequestFromDraft(draft model.AccountDraft) addAccountRequest {
	return addAccountRequest{
		BrokerName:          draft.BrokerName,
		AccountID:           draft.AccountID,
		APIKey:              draft.APIKey,
		Location:            draft.Location,
		MaxPositionLimit:    draft.MaxPositionLimit,
		SplittingTarget:     draft.SplittingTarget,
		RiskPercentage:      draft.RiskPercentage,
		AutoLotSizeSet:      draft.AutoLotSizeSet,
		DailyRiskPercentage: draft.DailyRiskPercentage,
		Timezone:            draft.Timezone,
	}
}

func isRejectedCredentials(msg string) bool {
	return strings.Contains(strings.ToLower(msg), rejectedCredentialsMarker)
}
