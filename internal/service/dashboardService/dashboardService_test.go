package dashboardService

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/data/session"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi"
	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/internal/service"
	"github.com/KotFed0t/tradedash_bot/internal/validation"
)

type fakeDashboardApi struct {
	loginToken   string
	loginMessage string
	loginErr     error
	loginCalls   int

	signupToken string
	signupErr   error

	verifyErr      error
	verifyErrByTok map[string]error
	verifyCalls    int

	accounts    []model.AccountSummary
	accountsErr error

	addPreview model.AccountPreview
	addErr     error
	addCalls   int
	addEntered chan struct{}
	addRelease chan struct{}

	confirmErr   error
	confirmCalls int

	logoutErr   error
	logoutCalls int
}

func (f *fakeDashboardApi) Login(_ context.Context, _ model.Credentials) (string, string, error) {
	f.loginCalls++
	return f.loginToken, f.loginMessage, f.loginErr
}

func (f *fakeDashboardApi) Signup(_ context.Context, _ model.SignupProfile) (string, error) {
	return f.signupToken, f.signupErr
}

func (f *fakeDashboardApi) VerifyToken(_ context.Context, token string) error {
	f.verifyCalls++
	if f.verifyErrByTok != nil {
		return f.verifyErrByTok[token]
	}
	return f.verifyErr
}

func (f *fakeDashboardApi) GetUserAccounts(_ context.Context, _ string) ([]model.AccountSummary, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeDashboardApi) AddAccount(_ context.Context, _ string, _ model.AccountDraft) (model.AccountPreview, error) {
	f.addCalls++
	if f.addEntered != nil {
		close(f.addEntered)
		<-f.addRelease
	}
	return f.addPreview, f.addErr
}

func (f *fakeDashboardApi) ConfirmAccount(_ context.Context, _ string, _ model.AccountDraft) error {
	f.confirmCalls++
	return f.confirmErr
}

func (f *fakeDashboardApi) Logout(_ context.Context, _ string) error {
	f.logoutCalls++
	return f.logoutErr
}

type fakeSessionStore struct {
	sessions map[string]model.Session
	keysErr  error
	cleared  []string
}

func (f *fakeSessionStore) GetSession(_ context.Context, key string) (model.Session, error) {
	sess, ok := f.sessions[key]
	if !ok {
		return model.Session{}, session.ErrNotFound
	}
	return sess, nil
}

func (f *fakeSessionStore) ClearSession(_ context.Context, key string) error {
	delete(f.sessions, key)
	f.cleared = append(f.cleared, key)
	return nil
}

func (f *fakeSessionStore) SessionKeys(_ context.Context) ([]string, error) {
	if f.keysErr != nil {
		return nil, f.keysErr
	}
	keys := make([]string, 0, len(f.sessions))
	for key := range f.sessions {
		keys = append(keys, key)
	}
	return keys, nil
}

type fakeCache struct {
	verified  map[string]bool
	isErr     error
	setCalls  []string
	dropCalls []string
}

func (f *fakeCache) SetSessionVerified(_ context.Context, key string) error {
	if f.verified == nil {
		f.verified = make(map[string]bool)
	}
	f.verified[key] = true
	f.setCalls = append(f.setCalls, key)
	return nil
}

func (f *fakeCache) IsSessionVerified(_ context.Context, key string) (bool, error) {
	if f.isErr != nil {
		return false, f.isErr
	}
	return f.verified[key], nil
}

func (f *fakeCache) DropSessionVerified(_ context.Context, key string) error {
	delete(f.verified, key)
	f.dropCalls = append(f.dropCalls, key)
	return nil
}

type fakeReportGen struct {
	file []byte
	ext  string
	err  error
}

func (f *fakeReportGen) Generate(_ context.Context, _ []model.AccountSummary) ([]byte, string, error) {
	return f.file, f.ext, f.err
}

type fakeCloudStorage struct {
	link      string
	err       error
	filenames []string
}

func (f *fakeCloudStorage) UploadFile(_ context.Context, _ io.Reader, filename string) (string, error) {
	f.filenames = append(f.filenames, filename)
	return f.link, f.err
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.AccountsPerPage = 2
	cfg.Telegram.FileLimitInBytes = 1024
	return cfg
}

func validDraft() model.AccountDraft {
	return model.AccountDraft{
		BrokerName:       "IC Markets",
		AccountID:        "800123",
		APIKey:           "secret-key",
		Location:         model.LocationLondon,
		MaxPositionLimit: 10,
		SplittingTarget:  2,
	}
}

func accountSummaries(n int) []model.AccountSummary {
	accounts := make([]model.AccountSummary, 0, n)
	for i := 0; i < n; i++ {
		accounts = append(accounts, model.AccountSummary{
			ID:         "id" + strings.Repeat("0", i+1),
			BrokerName: "Broker",
			AccountID:  "acc" + strings.Repeat("0", i+1),
		})
	}
	return accounts
}

func TestLogin_CachesVerifiedMark(t *testing.T) {
	api := &fakeDashboardApi{loginToken: "tok-1", loginMessage: "welcome back"}
	cache := &fakeCache{}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	token, message, err := srv.Login(context.Background(), 42, model.Credentials{Identifier: "user", Password: "pass"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "welcome back", message)
	assert.Equal(t, []string{"tok-1"}, cache.setCalls)
}

func TestLogin_ApiError(t *testing.T) {
	wantErr := &externalApi.APIError{StatusCode: 401, Message: "Invalid credentials"}
	api := &fakeDashboardApi{loginErr: wantErr}
	cache := &fakeCache{}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	_, _, err := srv.Login(context.Background(), 42, model.Credentials{Identifier: "user", Password: "pass"})
	require.Error(t, err)

	var apiErr *externalApi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid credentials", apiErr.Message)
	assert.Empty(t, cache.setCalls)
}

func TestSignup_CachesVerifiedMark(t *testing.T) {
	api := &fakeDashboardApi{signupToken: "tok-new"}
	cache := &fakeCache{}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	token, err := srv.Signup(context.Background(), 42, model.SignupProfile{Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
	assert.Equal(t, []string{"tok-new"}, cache.setCalls)
}

func TestLogout_RemoteErrorStillDropsLocalMark(t *testing.T) {
	api := &fakeDashboardApi{logoutErr: errors.New("network down")}
	cache := &fakeCache{verified: map[string]bool{"tok-1": true}}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	srv.Logout(context.Background(), "tok-1")

	assert.Equal(t, 1, api.logoutCalls)
	assert.Equal(t, []string{"tok-1"}, cache.dropCalls)
}

func TestEnsureSession_EmptyToken(t *testing.T) {
	api := &fakeDashboardApi{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	err := srv.EnsureSession(context.Background(), "")
	require.ErrorIs(t, err, service.ErrNoSession)
	assert.Zero(t, api.verifyCalls)
}

func TestEnsureSession_CacheHitSkipsNetwork(t *testing.T) {
	api := &fakeDashboardApi{}
	cache := &fakeCache{verified: map[string]bool{"tok-1": true}}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	require.NoError(t, srv.EnsureSession(context.Background(), "tok-1"))
	assert.Zero(t, api.verifyCalls)
}

func TestEnsureSession_VerifiesAndCaches(t *testing.T) {
	api := &fakeDashboardApi{}
	cache := &fakeCache{}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	require.NoError(t, srv.EnsureSession(context.Background(), "tok-1"))
	assert.Equal(t, 1, api.verifyCalls)
	assert.Equal(t, []string{"tok-1"}, cache.setCalls)
}

func TestEnsureSession_ExpiredToken(t *testing.T) {
	api := &fakeDashboardApi{verifyErr: externalApi.ErrUnauthorized}
	cache := &fakeCache{verified: map[string]bool{}}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	err := srv.EnsureSession(context.Background(), "tok-stale")
	require.ErrorIs(t, err, service.ErrSessionExpired)
	assert.Equal(t, []string{"tok-stale"}, cache.dropCalls)
}

func TestEnsureSession_TransientVerifyError(t *testing.T) {
	wantErr := errors.New("connection refused")
	api := &fakeDashboardApi{verifyErr: wantErr}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	err := srv.EnsureSession(context.Background(), "tok-1")
	require.ErrorIs(t, err, wantErr)
}

func TestEnsureSession_CacheReadErrorFallsBackToNetwork(t *testing.T) {
	api := &fakeDashboardApi{}
	cache := &fakeCache{isErr: errors.New("redis down")}
	srv := New(testConfig(), &fakeSessionStore{}, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	require.NoError(t, srv.EnsureSession(context.Background(), "tok-1"))
	assert.Equal(t, 1, api.verifyCalls)
}

func TestAccounts_Pagination(t *testing.T) {
	api := &fakeDashboardApi{accounts: accountSummaries(5)}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	page, err := srv.Accounts(context.Background(), "tok-1", 1)
	require.NoError(t, err)
	assert.Len(t, page.Accounts, 2)
	assert.Equal(t, 1, page.CurPage)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, 5, page.Total)

	assert.Equal(t, 1, page.Accounts[0].Ordinal)
	assert.Equal(t, 2, page.Accounts[1].Ordinal)

	page, err = srv.Accounts(context.Background(), "tok-1", 3)
	require.NoError(t, err)
	assert.Len(t, page.Accounts, 1)
	assert.Equal(t, 3, page.CurPage)
	assert.False(t, page.HasNextPage)

	// сквозная нумерация продолжается на последней странице
	assert.Equal(t, 5, page.Accounts[0].Ordinal)
}

func TestAccounts_PageBeyondEndClampsToLast(t *testing.T) {
	api := &fakeDashboardApi{accounts: accountSummaries(3)}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	page, err := srv.Accounts(context.Background(), "tok-1", 99)
	require.NoError(t, err)
	assert.Equal(t, 2, page.CurPage)
	assert.Len(t, page.Accounts, 1)
	assert.False(t, page.HasNextPage)
	assert.Equal(t, 3, page.Accounts[0].Ordinal)
}

func TestAccounts_EmptyList(t *testing.T) {
	api := &fakeDashboardApi{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	page, err := srv.Accounts(context.Background(), "tok-1", 1)
	require.NoError(t, err)
	assert.Empty(t, page.Accounts)
	assert.Equal(t, 1, page.CurPage)
	assert.False(t, page.HasNextPage)
	assert.Zero(t, page.Total)
}

func TestAccountByID(t *testing.T) {
	accounts := accountSummaries(3)
	api := &fakeDashboardApi{accounts: accounts}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	account, err := srv.AccountByID(context.Background(), "tok-1", accounts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, accounts[1], account)

	_, err = srv.AccountByID(context.Background(), "tok-1", "missing")
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestVerifyAccount_InvalidDraftSkipsNetwork(t *testing.T) {
	api := &fakeDashboardApi{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	draft := validDraft()
	draft.APIKey = ""

	_, err := srv.VerifyAccount(context.Background(), 42, "tok-1", draft)
	require.Error(t, err)

	var ruleErr *validation.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "API Key is required.", ruleErr.Message)
	assert.Zero(t, api.addCalls)
}

func TestVerifyAccount_ReturnsPreview(t *testing.T) {
	wantPreview := model.AccountPreview{Name: "Main", Broker: "IC Markets", Currency: "USD"}
	api := &fakeDashboardApi{addPreview: wantPreview}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	preview, err := srv.VerifyAccount(context.Background(), 42, "tok-1", validDraft())
	require.NoError(t, err)
	assert.Equal(t, wantPreview, preview)
	assert.Equal(t, 1, api.addCalls)
}

func TestVerifyAccount_RejectsDuplicateSubmit(t *testing.T) {
	api := &fakeDashboardApi{
		addEntered: make(chan struct{}),
		addRelease: make(chan struct{}),
	}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := srv.VerifyAccount(context.Background(), 42, "tok-1", validDraft())
		assert.NoError(t, err)
	}()

	// ждем пока первый сабмит повиснет внутри сетевого вызова
	<-api.addEntered

	_, err := srv.VerifyAccount(context.Background(), 42, "tok-1", validDraft())
	require.ErrorIs(t, err, service.ErrOperationInFlight)

	close(api.addRelease)
	wg.Wait()

	assert.Equal(t, 1, api.addCalls)
}

func TestVerifyAccount_DifferentChatsRunIndependently(t *testing.T) {
	api := &fakeDashboardApi{
		addEntered: make(chan struct{}),
		addRelease: make(chan struct{}),
	}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := srv.VerifyAccount(context.Background(), 42, "tok-1", validDraft())
		assert.NoError(t, err)
	}()

	<-api.addEntered
	close(api.addRelease)
	wg.Wait()

	api.addEntered = nil

	// другой чат не должен упираться в чужой guard
	_, err := srv.VerifyAccount(context.Background(), 43, "tok-2", validDraft())
	require.NoError(t, err)
	assert.Equal(t, 2, api.addCalls)
}

func TestConfirmAccount_RevalidatesDraft(t *testing.T) {
	api := &fakeDashboardApi{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	draft := validDraft()
	draft.SplittingTarget = 0

	err := srv.ConfirmAccount(context.Background(), 42, "tok-1", draft)
	require.Error(t, err)

	var ruleErr *validation.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "Splitting Target must be a positive number.", ruleErr.Message)
	assert.Zero(t, api.confirmCalls)
}

func TestConfirmAccount_Success(t *testing.T) {
	api := &fakeDashboardApi{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	require.NoError(t, srv.ConfirmAccount(context.Background(), 42, "tok-1", validDraft()))
	assert.Equal(t, 1, api.confirmCalls)
}

func TestExportAccountsReport_NoAccounts(t *testing.T) {
	api := &fakeDashboardApi{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, &fakeReportGen{}, &fakeCloudStorage{})

	_, _, _, err := srv.ExportAccountsReport(context.Background(), "tok-1")
	require.ErrorIs(t, err, service.ErrNoAccounts)
}

func TestExportAccountsReport_SmallFileGoesDirect(t *testing.T) {
	api := &fakeDashboardApi{accounts: accountSummaries(2)}
	gen := &fakeReportGen{file: []byte("small"), ext: ".xlsx"}
	storage := &fakeCloudStorage{}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, gen, storage)

	file, filename, link, err := srv.ExportAccountsReport(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("small"), file)
	assert.True(t, strings.HasPrefix(filename, "accounts_"))
	assert.True(t, strings.HasSuffix(filename, ".xlsx"))
	assert.Empty(t, link)
	assert.Empty(t, storage.filenames)
}

func TestExportAccountsReport_LargeFileUploadsToCloud(t *testing.T) {
	api := &fakeDashboardApi{accounts: accountSummaries(2)}
	gen := &fakeReportGen{file: make([]byte, 2048), ext: ".xlsx"}
	storage := &fakeCloudStorage{link: "https://drive.example.com/file/abc"}
	srv := New(testConfig(), &fakeSessionStore{}, &fakeCache{}, api, gen, storage)

	file, filename, link, err := srv.ExportAccountsReport(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Nil(t, file)
	assert.Empty(t, filename)
	assert.Equal(t, "https://drive.example.com/file/abc", link)
	require.Len(t, storage.filenames, 1)
	assert.True(t, strings.HasSuffix(storage.filenames[0], ".xlsx"))
}

func TestRevalidateSessions_DropsOnlyRejectedTokens(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]model.Session{
		"1": {Token: "tok-good"},
		"2": {Token: "tok-stale"},
		"3": {Token: "tok-flaky"},
		"4": {},
	}}
	api := &fakeDashboardApi{verifyErrByTok: map[string]error{
		"tok-good":  nil,
		"tok-stale": externalApi.ErrUnauthorized,
		"tok-flaky": errors.New("connection refused"),
	}}
	cache := &fakeCache{verified: map[string]bool{"tok-stale": true}}
	srv := New(testConfig(), store, cache, api, &fakeReportGen{}, &fakeCloudStorage{})

	require.NoError(t, srv.RevalidateSessions(context.Background()))

	// токен без ответа сервера пережидает до следующего прохода
	assert.Equal(t, []string{"2"}, store.cleared)
	assert.Equal(t, []string{"tok-stale"}, cache.dropCalls)
	assert.Equal(t, []string{"tok-good"}, cache.setCalls)
	assert.Contains(t, store.sessions, "1")
	assert.Contains(t, store.sessions, "3")
	assert.Contains(t, store.sessions, "4")
}

func TestRevalidateSessions_KeysError(t *testing.T) {
	wantErr := errors.New("scan failed")
	store := &fakeSessionStore{keysErr: wantErr}
	srv := New(testConfig(), store, &fakeCache{}, &fakeDashboardApi{}, &fakeReportGen{}, &fakeCloudStorage{})

	require.ErrorIs(t, srv.RevalidateSessions(context.Background()), wantErr)
}
