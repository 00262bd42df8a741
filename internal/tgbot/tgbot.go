package tgbot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/data/session"
	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/internal/model/tg/tgCallback"
	"github.com/KotFed0t/tradedash_bot/internal/transport/telegram"
	customMW "github.com/KotFed0t/tradedash_bot/internal/transport/telegram/middleware"
	"github.com/KotFed0t/tradedash_bot/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, key string) (model.Session, error)
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) *TGBot {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		slog.Error("error while tele.NewBot", slog.String("err", err.Error()))
		panic(err)
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		// получение сессии и выбор метода контроллера на основе шага пользователя
		ctx := utils.CreateCtxWithRqID(c)
		rqID := utils.GetRequestIDFromCtx(ctx)

		chatSession, err := b.session.GetSession(ctx, strconv.FormatInt(c.Chat().ID, 10))
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
				return c.Send("Something went wrong. Please try again.")
			}
			chatSession = model.Session{}
		}

		c.Set("session", chatSession)

		switch chatSession.State {
		case model.ExpectingLoginIdentifier:
			return b.ctrl.ProcessLoginIdentifier(c)
		case model.ExpectingLoginPassword:
			return b.ctrl.ProcessLoginPassword(c)
		case model.ExpectingSignupEmail,
			model.ExpectingSignupMobile,
			model.ExpectingSignupFirstName,
			model.ExpectingSignupLastName,
			model.ExpectingSignupPassword:
			return b.ctrl.ProcessSignupInput(c)
		case model.ExpectingBrokerName,
			model.ExpectingAccountID,
			model.ExpectingAPIKey,
			model.ExpectingMaxPositionLimit,
			model.ExpectingSplittingTarget,
			model.ExpectingRiskPercentage,
			model.ExpectingDailyRiskPercentage,
			model.ExpectingTimezone:
			return b.ctrl.ProcessDraftInput(c)
		default:
			return c.Send("Use /start to see what I can do.")
		}
	})

	b.bot.Handle(&tele.Btn{Unique: tgCallback.Login}, b.ctrl.InitLogin)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.Signup}, b.ctrl.InitSignup)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.Dashboard}, b.ctrl.Dashboard)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.AddAccount}, b.ctrl.InitAddAccount)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.ExportReport}, b.ctrl.ExportReport)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.Logout}, b.ctrl.Logout)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.VerifyDraft}, b.ctrl.VerifyDraft)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.ConfirmDraft}, b.ctrl.ConfirmDraft)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.CancelPreview}, b.ctrl.CancelPreview)
	b.bot.Handle(&tele.Btn{Unique: tgCallback.DiscardDraft}, b.ctrl.DiscardDraft)

	b.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		// unique с payload после двоеточия не матчится на зарегистрированные кнопки и приходит сырым
		data := strings.TrimSpace(strings.TrimPrefix(c.Callback().Data, "\f"))

		switch {
		case strings.HasPrefix(data, tgCallback.LocationPrefix):
			return b.ctrl.ProcessLocationSelection(c, strings.TrimPrefix(data, tgCallback.LocationPrefix))
		case strings.HasPrefix(data, tgCallback.AutoLotPrefix):
			return b.ctrl.ProcessAutoLotSelection(c, strings.TrimPrefix(data, tgCallback.AutoLotPrefix))
		case strings.HasPrefix(data, tgCallback.EditFieldPrefix):
			return b.ctrl.InitFieldEdit(c, strings.TrimPrefix(data, tgCallback.EditFieldPrefix))
		case strings.HasPrefix(data, tgCallback.SelectAccountPrefix):
			return b.ctrl.AccountDetails(c, strings.TrimPrefix(data, tgCallback.SelectAccountPrefix))
		case strings.HasPrefix(data, tgCallback.PrevPagePrefix):
			return b.ctrl.DashboardPage(c, strings.TrimPrefix(data, tgCallback.PrevPagePrefix))
		case strings.HasPrefix(data, tgCallback.NextPagePrefix):
			return b.ctrl.DashboardPage(c, strings.TrimPrefix(data, tgCallback.NextPagePrefix))
		}

		return c.Respond()
	})

	b.bot.Handle("/start", b.ctrl.Start)

	b.bot.Handle("/login", b.ctrl.InitLogin)

	b.bot.Handle("/signup", b.ctrl.InitSignup)

	b.bot.Handle("/dashboard", b.ctrl.Dashboard)

	b.bot.Handle("/add_account", b.ctrl.InitAddAccount)

	b.bot.Handle("/export", b.ctrl.ExportReport)

	b.bot.Handle("/logout", b.ctrl.Logout)
}
