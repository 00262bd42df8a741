package googleDriveApi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/KotFed0t/tradedash_bot/config"
	"github.com/KotFed0t/tradedash_bot/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const downloadLinkTemplate = "https://drive.google.com/file/d/%s/view"

type GoogleDriveApi struct {
	srv *drive.Service
	cfg *config.Config
}

func New(ctx context.Context, cfg *config.Config) *GoogleDriveApi {
	srv, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.GoogleDrive.CredentialsFile))
	if err != nil {
		slog.Error("failed on drive.NewService")
		panic(err)
	}
	return &GoogleDriveApi{srv: srv, cfg: cfg}
}

func (a *GoogleDriveApi) UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.UploadFile"

	slog.Debug("UploadFile start", slog.String("rqID", rqID), slog.String("op", op), slog.String("filename", filename))

	fileMeta := &drive.File{
		Name:        filename,
		MimeType:    mime.TypeByExtension(filepath.Ext(filename)),
		Description: "tradedash accounts report",
	}

	uploadedFile, err := a.srv.Files.
		Create(fileMeta).
		Media(reader). // сам бьет на чанки по 16МБ и ретраит сетевые ошибки
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("failed on uploading file to google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	// без прав anyone/reader пользователь не откроет ссылку
	perm := &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}

	_, err = a.srv.Permissions.Create(uploadedFile.Id, perm).Context(ctx).Do()
	if err != nil {
		slog.Error("failed on creating permission to uploaded file in google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	slog.Debug("UploadFile completed", slog.String("rqID", rqID), slog.String("op", op), slog.String("fileID", uploadedFile.Id))

	return fmt.Sprintf(downloadLinkTemplate, uploadedFile.Id), nil
}

// DeleteOldFiles чистит выгруженные отчеты старше cfg.GoogleDrive.FileTTL
func (a *GoogleDriveApi) DeleteOldFiles(ctx context.Context) error {
	op := "GoogleDriveApi.DeleteOldFiles"
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug("DeleteOldFiles start", slog.String("rqID", rqID), slog.String("op", op))

	cutoff := time.Now().Add(-1 * a.cfg.GoogleDrive.FileTTL)

	r, err := a.srv.Files.List().
		Q(fmt.Sprintf("createdTime < '%s'", cutoff.UTC().Format(time.RFC3339))).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("failed on getting files", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	deletedFiles := 0
	for _, f := range r.Files {
		err = a.srv.Files.Delete(f.Id).Context(ctx).Do()
		if err != nil {
			slog.Error("failed delete file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()), slog.String("fileID", f.Id))
			continue
		}
		deletedFiles++
	}

	err = a.srv.Files.EmptyTrash().Context(ctx).Do()
	if err != nil {
		slog.Error("failed empty trash", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	slog.Info("delete old files done", slog.String("rqID", rqID), slog.Int("deletedFiles", deletedFiles))

	return nil
}
