package dashboardService

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/data/session"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi"
	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/internal/service"
	"github.com/KotFed0t/tradedash_bot/internal/validation"
	"github.com/KotFed0t/tradedash_bot/utils"
)

type DashboardApi interface {
	Login(ctx context.Context, creds model.Credentials) (token string, message string, err error)
	Signup(ctx context.Context, profile model.SignupProfile) (token string, err error)
	VerifyToken(ctx context.Context, token string) error
	GetUserAccounts(ctx context.Context, token string) ([]model.AccountSummary, error)
	AddAccount(ctx context.Context, token string, draft model.AccountDraft) (model.AccountPreview, error)
	ConfirmAccount(ctx context.Context, token string, draft model.AccountDraft) error
	Logout(ctx context.Context, token string) error
}

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
	ClearSession(ctx context.Context, key string) error
	SessionKeys(ctx context.Context) ([]string, error)
}

type Cache interface {
	SetSessionVerified(ctx context.Context, key string) error
	IsSessionVerified(ctx context.Context, key string) (bool, error)
	DropSessionVerified(ctx context.Context, key string) error
}

type ReportGenerator interface {
	Generate(ctx context.Context, accounts []model.AccountSummary) (fileBytes []byte, fileExtension string, err error)
}

type CloudStorage interface {
	UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error)
}

type DashboardService struct {
	cfg          *config.Config
	session      Session
	cache        Cache
	dashboardApi DashboardApi
	reportGen    ReportGenerator
	cloudStorage CloudStorage
	inFlight     sync.Map
}

func New(
	cfg *config.Config,
	session Session,
	cache Cache,
	dashboardApi DashboardApi,
	reportGen ReportGenerator,
	cloudStorage CloudStorage,
) *DashboardService {
	return &DashboardService{
		cfg:          cfg,
		session:      session,
		cache:        cache,
		dashboardApi: dashboardApi,
		reportGen:    reportGen,
		cloudStorage: cloudStorage,
	}
}

// держим не больше одной сетевой операции на чат, повторные сабмиты отбрасываем
func (s *DashboardService) acquireOp(chatID int64) (release func(), err error) {
	if _, loaded := s.inFlight.LoadOrStore(chatID, struct{}{}); loaded {
		return nil, service.ErrOperationInFlight
	}
	return func() { s.inFlight.Delete(chatID) }, nil
}

func (s *DashboardService) Login(ctx context.Context, chatID int64, creds model.Credentials) (token string, message string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.Login"

	slog.Debug("Login start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("Login finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	release, err := s.acquireOp(chatID)
	if err != nil {
		return "", "", err
	}
	defer release()

	token, message, err = s.dashboardApi.Login(ctx, creds)
	if err != nil {
		slog.Error("got error from dashboardApi.Login", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", "", err
	}

	err = s.cache.SetSessionVerified(ctx, token)
	if err != nil {
		slog.Error("got error from cache.SetSessionVerified", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}

	return token, message, nil
}

func (s *DashboardService) Signup(ctx context.Context, chatID int64, profile model.SignupProfile) (token string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.Signup"

	slog.Debug("Signup start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("Signup finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	release, err := s.acquireOp(chatID)
	if err != nil {
		return "", err
	}
	defer release()

	token, err = s.dashboardApi.Signup(ctx, profile)
	if err != nil {
		slog.Error("got error from dashboardApi.Signup", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	err = s.cache.SetSessionVerified(ctx, token)
	if err != nil {
		slog.Error("got error from cache.SetSessionVerified", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}

	return token, nil
}

// локальный выход должен пройти всегда, ошибку удаленного logout только логируем
func (s *DashboardService) Logout(ctx context.Context, token string) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.Logout"

	slog.Debug("Logout start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("Logout finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	err := s.dashboardApi.Logout(ctx, token)
	if err != nil {
		slog.Warn("got error from dashboardApi.Logout", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	err = s.cache.DropSessionVerified(ctx, token)
	if err != nil {
		slog.Error("got error from cache.DropSessionVerified", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}
}

// EnsureSession проверяет токен перед входом на защищенный экран.
// Пустой токен отсекаем без похода в сеть, свежепроверенный - по отметке в кэше.
func (s *DashboardService) EnsureSession(ctx context.Context, token string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.EnsureSession"

	slog.Debug("EnsureSession start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("EnsureSession finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	if token == "" {
		return service.ErrNoSession
	}

	verified, err := s.cache.IsSessionVerified(ctx, token)
	if err != nil {
		slog.Warn("can't get verified mark from cache", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}
	if verified {
		return nil
	}

	err = s.dashboardApi.VerifyToken(ctx, token)
	if err != nil {
		if errors.Is(err, externalApi.ErrUnauthorized) {
			slog.Info("session token rejected by server", slog.String("rqID", rqID), slog.String("op", op))
			_ = s.cache.DropSessionVerified(ctx, token)
			return service.ErrSessionExpired
		}
		slog.Error("got error from dashboardApi.VerifyToken", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	err = s.cache.SetSessionVerified(ctx, token)
	if err != nil {
		slog.Error("got error from cache.SetSessionVerified", slog.String("rqID", rqID), slog.String("err", err.Error()))
	}

	return nil
}

func (s *DashboardService) Accounts(ctx context.Context, token string, page int) (model.AccountsPage, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.Accounts"

	slog.Debug("Accounts start", slog.String("rqID", rqID), slog.String("op", op), slog.Int("page", page))
	defer func() {
		slog.Debug("Accounts finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int("page", page))
	}()

	accounts, err := s.dashboardApi.GetUserAccounts(ctx, token)
	if err != nil {
		slog.Error("got error from dashboardApi.GetUserAccounts", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.AccountsPage{}, err
	}

	total := len(accounts)
	perPage := s.cfg.AccountsPerPage

	if page < 1 {
		page = 1
	}

	// сервер пагинацию не отдает, режем список на страницы сами
	start := (page - 1) * perPage
	if start >= total && page > 1 {
		page = (total + perPage - 1) / perPage
		if page < 1 {
			page = 1
		}
		start = (page - 1) * perPage
	}

	end := start + perPage
	if end > total {
		end = total
	}
	if start > total {
		start = total
	}

	pageAccounts := accounts[start:end]
	for i := range pageAccounts {
		pageAccounts[i].Ordinal = start + i + 1
	}

	return model.AccountsPage{
		Accounts:    pageAccounts,
		CurPage:     page,
		HasNextPage: end < total,
		Total:       total,
	}, nil
}

func (s *DashboardService) AccountByID(ctx context.Context, token string, accountID string) (model.AccountSummary, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.AccountByID"

	slog.Debug("AccountByID start", slog.String("rqID", rqID), slog.String("op", op), slog.String("accountID", accountID))
	defer func() {
		slog.Debug("AccountByID finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("accountID", accountID))
	}()

	accounts, err := s.dashboardApi.GetUserAccounts(ctx, token)
	if err != nil {
		slog.Error("got error from dashboardApi.GetUserAccounts", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.AccountSummary{}, err
	}

	for _, account := range accounts {
		if account.ID == accountID {
			return account, nil
		}
	}

	return model.AccountSummary{}, service.ErrNotFound
}

func (s *DashboardService) VerifyAccount(ctx context.Context, chatID int64, token string, draft model.AccountDraft) (model.AccountPreview, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.VerifyAccount"

	slog.Debug("VerifyAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("VerifyAccount finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	release, err := s.acquireOp(chatID)
	if err != nil {
		return model.AccountPreview{}, err
	}
	defer release()

	// невалидный черновик до сети не доходит
	if err := validation.ValidateDraft(draft); err != nil {
		return model.AccountPreview{}, err
	}

	preview, err := s.dashboardApi.AddAccount(ctx, token, draft)
	if err != nil {
		slog.Error("got error from dashboardApi.AddAccount", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.AccountPreview{}, err
	}

	return preview, nil
}

func (s *DashboardService) ConfirmAccount(ctx context.Context, chatID int64, token string, draft model.AccountDraft) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.ConfirmAccount"

	slog.Debug("ConfirmAccount start", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	defer func() {
		slog.Debug("ConfirmAccount finished", slog.String("rqID", rqID), slog.String("op", op), slog.Int64("chatID", chatID))
	}()

	release, err := s.acquireOp(chatID)
	if err != nil {
		return err
	}
	defer release()

	// черновик могли отредактировать после verify, поэтому прогоняем правила еще раз
	if err := validation.ValidateDraft(draft); err != nil {
		return err
	}

	err = s.dashboardApi.ConfirmAccount(ctx, token, draft)
	if err != nil {
		slog.Error("got error from dashboardApi.ConfirmAccount", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	return nil
}

func (s *DashboardService) ExportAccountsReport(ctx context.Context, token string) (file []byte, filename string, downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "DashboardService.ExportAccountsReport"

	slog.Debug("ExportAccountsReport start", slog.String("rqID", rqID), slog.String("op", op))
	defer func() {
		slog.Debug("ExportAccountsReport finished", slog.String("rqID", rqID), slog.String("op", op))
	}()

	accounts, err := s.dashboardApi.GetUserAccounts(ctx, token)
	if err != nil {
		slog.Error("got error from dashboardApi.GetUserAccounts", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", "", err
	}

	if len(accounts) == 0 {
		return nil, "", "", service.ErrNoAccounts
	}

	file, ext, err := s.reportGen.Generate(ctx, accounts)
	if err != nil {
		slog.Error("got error from reportGen.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", "", err
	}

	filename = fmt.Sprintf("accounts_%s%s", time.Now().Format("02.01.2006"), ext)

	// телеграм не примет слишком большой документ, такой заливаем на диск и отдаем ссылку
	if len(file) > s.cfg.Telegram.FileLimitInBytes {
		slog.Info(
			"report exceeds telegram limit, uploading to cloud storage",
			slog.String("rqID", rqID),
			slog.String("op", op),
			slog.Int("fileSize", len(file)),
		)

		downloadLink, err = s.cloudStorage.UploadFile(ctx, bytes.NewReader(file), filename)
		if err != nil {
			slog.Error("got error from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", "", err
		}

		return nil, "", downloadLink, nil
	}

	return file, filename, "", nil
}

// RevalidateSessions фоном выкидывает сессии, токены которых сервер больше не принимает
func (s *DashboardService) RevalidateSessions(ctx context.Context) error {
	op := "DashboardService.RevalidateSessions"
	rqID := utils.GetRequestIDFromCtx(ctx)

	keys, err := s.session.SessionKeys(ctx)
	if err != nil {
		slog.Error("got error from session.SessionKeys", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	checked := 0
	dropped := 0

	for _, key := range keys {
		sess, err := s.session.GetSession(ctx, key)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()), slog.String("key", key))
			}
			continue
		}

		if sess.Token == "" {
			continue
		}

		checked++

		err = s.dashboardApi.VerifyToken(ctx, sess.Token)
		if err != nil {
			if errors.Is(err, externalApi.ErrUnauthorized) {
				_ = s.cache.DropSessionVerified(ctx, sess.Token)
				if err := s.session.ClearSession(ctx, key); err == nil {
					dropped++
				}
			}
			// сетевые ошибки не повод выкидывать сессию, проверим в следующий заход
			continue
		}

		err = s.cache.SetSessionVerified(ctx, sess.Token)
		if err != nil {
			slog.Error("got error from cache.SetSessionVerified", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}

	slog.Info("sessions revalidation done", slog.String("rqID", rqID), slog.Int("checked", checked), slog.Int("dropped", dropped))

	return nil
}
