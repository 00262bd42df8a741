package xslsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/tradedash_bot/internal/model"
	"github.com/KotFed0t/tradedash_bot/utils"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Accounts"

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

func (g *XSLSXGenerator) Generate(ctx context.Context, accounts []model.AccountSummary) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	if len(accounts) == 0 {
		return nil, "", errors.New("empty accounts")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	err = g.fillSheet(ctx, f, accounts)
	if err != nil {
		return nil, "", err
	}

	// Удаляем лист по умолчанию "Sheet1"
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

func (g *XSLSXGenerator) fillSheet(ctx context.Context, f *excelize.File, accounts []model.AccountSummary) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.fillSheet"

	_, err := f.NewSheet(sheetName)
	if err != nil {
		slog.Error("got error while creating NewSheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	err = f.MergeCell(sheetName, "A1", "D1")
	if err != nil {
		return err
	}

	f.SetCellValue(sheetName, "A1", fmt.Sprintf("Trading accounts (exported %s)", time.Now().Format("02.01.2006")))

	styleID, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Font: &excelize.Font{
			Bold: true,
			Size: 11,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"}, // Светло-голубой цвет
		},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellStyle(sheetName, "A1", "A1", styleID); err != nil {
		return fmt.Errorf("ошибка применения стиля: %w", err)
	}

	_ = f.SetCellStr(sheetName, "A2", "#")
	_ = f.SetCellStr(sheetName, "B2", "broker")
	_ = f.SetCellStr(sheetName, "C2", "account id")
	_ = f.SetCellStr(sheetName, "D2", "id")

	for i, account := range accounts {
		_ = f.SetCellInt(sheetName, fmt.Sprintf("A%d", i+3), i+1)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("B%d", i+3), account.BrokerName)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("C%d", i+3), account.AccountID)
		_ = f.SetCellStr(sheetName, fmt.Sprintf("D%d", i+3), account.ID)
	}

	return nil
}
