package dashboardApi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/internal/externalApi"
	"github.com/KotFed0t/tradedash_bot/internal/model"
)

func newTestApi(t *testing.T, handler http.HandlerFunc) *DashboardApi {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.API.Timeout = 5 * time.Second
	cfg.API.DashboardApi.Url = server.URL

	return New(cfg)
}

func testDraft() model.AccountDraft {
	return model.AccountDraft{
		BrokerName:       "IC Markets",
		AccountID:        "800123",
		APIKey:           "secret-key",
		Location:         model.LocationLondon,
		MaxPositionLimit: 10,
		SplittingTarget:  2,
	}
}

func TestLogin_Success(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)

		body := map[string]string{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user@example.com", body["identifier"])
		assert.Equal(t, "pass123", body["password"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Welcome back","token":"tok-1"}`))
	})

	token, message, err := api.Login(context.Background(), model.Credentials{Identifier: "user@example.com", Password: "pass123"})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, "Welcome back", message)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"Invalid identifier or password"}`))
	})

	_, _, err := api.Login(context.Background(), model.Credentials{Identifier: "user", Password: "wrong"})
	require.Error(t, err)

	var apiErr *externalApi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "Invalid identifier or password", apiErr.Message)
}

func TestLogin_ResponseWithoutToken(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	_, _, err := api.Login(context.Background(), model.Credentials{Identifier: "user", Password: "pass"})
	require.EqualError(t, err, "login response without token")
}

func TestSignup_Success(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signup", r.URL.Path)

		body := map[string]string{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "new@example.com", body["email"])
		assert.Equal(t, "+15551234567", body["mobile"])
		assert.Equal(t, "Jane", body["firstName"])
		assert.Equal(t, "Doe", body["lastName"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-new"}`))
	})

	profile := model.SignupProfile{
		Email:     "new@example.com",
		Mobile:    "+15551234567",
		Password:  "password1",
		FirstName: "Jane",
		LastName:  "Doe",
	}

	token, err := api.Signup(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, "tok-new", token)
}

func TestVerifyToken(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/auth/verify-token", r.URL.Path)
			assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, api.VerifyToken(context.Background(), "tok-1"))
	})

	t.Run("rejected token", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		err := api.VerifyToken(context.Background(), "tok-stale")
		require.ErrorIs(t, err, externalApi.ErrUnauthorized)
	})
}

func TestGetUserAccounts(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accounts", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"_id":"64ff","brokerName":"IC Markets","accountId":"800123"}]`))
	})

	accounts, err := api.GetUserAccounts(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "64ff", accounts[0].ID)
	assert.Equal(t, "IC Markets", accounts[0].BrokerName)
	assert.Equal(t, "800123", accounts[0].AccountID)
}

func TestGetUserAccounts_Unauthorized(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := api.GetUserAccounts(context.Background(), "tok-stale")
	require.ErrorIs(t, err, externalApi.ErrUnauthorized)
}

func TestAddAccount_ReturnsPreview(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/accounts", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		body := map[string]any{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "IC Markets", body["brokerName"])
		assert.Equal(t, "secret-key", body["apiKey"])
		assert.Equal(t, "London", body["location"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"accountInfo": {
				"name": "Main",
				"broker": "IC Markets",
				"balance": 10250.55,
				"equity": 10180.10,
				"currency": "USD",
				"leverage": 500,
				"platform": "mt5",
				"server": "ICMarkets-Live01",
				"login": "800123"
			}
		}`))
	})

	preview, err := api.AddAccount(context.Background(), "tok-1", testDraft())
	require.NoError(t, err)
	assert.Equal(t, "Main", preview.Name)
	assert.Equal(t, "IC Markets", preview.Broker)
	assert.True(t, preview.Balance.Equal(decimal.NewFromFloat(10250.55)))
	assert.True(t, preview.Equity.Equal(decimal.NewFromFloat(10180.10)))
	assert.Equal(t, "USD", preview.Currency)
	assert.Equal(t, 500, preview.Leverage)
	assert.Equal(t, "mt5", preview.Platform)
}

func TestAddAccount_RejectedCredentials(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Invalid Credentials or Region"}`))
	})

	_, err := api.AddAccount(context.Background(), "tok-1", testDraft())
	require.ErrorIs(t, err, externalApi.ErrAccountRejected)
}

func TestAddAccount_OtherServerError(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Account limit reached"}`))
	})

	_, err := api.AddAccount(context.Background(), "tok-1", testDraft())
	require.Error(t, err)

	var apiErr *externalApi.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Account limit reached", apiErr.Message)
}

func TestAddAccount_Unauthorized(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := api.AddAccount(context.Background(), "tok-stale", testDraft())
	require.ErrorIs(t, err, externalApi.ErrUnauthorized)
}

func TestAddAccount_ResponseWithoutPreview(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := api.AddAccount(context.Background(), "tok-1", testDraft())
	require.EqualError(t, err, "addAccount response without accountInfo")
}

func TestConfirmAccount(t *testing.T) {
	t.Run("success with empty body", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/accounts/confirm", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		})

		require.NoError(t, api.ConfirmAccount(context.Background(), "tok-1", testDraft()))
	})

	t.Run("rejected on confirm", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid credentials or region"}`))
		})

		err := api.ConfirmAccount(context.Background(), "tok-1", testDraft())
		require.ErrorIs(t, err, externalApi.ErrAccountRejected)
	})

	t.Run("expired session", func(t *testing.T) {
		api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		err := api.ConfirmAccount(context.Background(), "tok-stale", testDraft())
		require.ErrorIs(t, err, externalApi.ErrUnauthorized)
	})
}

func TestLogout(t *testing.T) {
	api := newTestApi(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/logout", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, api.Logout(context.Background(), "tok-1"))
}
