package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raphaelgruber/speechkit-go/internal/models"
	"github.com/spf13/cobra"
)

var (
	submitUserID int64
	submitType   string
	submitName   string
	submitWatch  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <source>",
	Short: "Start a transcription run",
	Long: `Start a transcription run for a local file, a share link or a chat file id.

The source type is detected unless --type is given:
  - an existing local path         -> downloaded_file_path
  - an http(s) link (Drive, Disk)  -> upload_url
  - anything else                  -> telegram_file_id

Local files must live under the server's LOCAL_SOURCE_DIR.

Examples:
  speechkit submit ./incoming/meeting.m4a --user 42
  speechkit submit "https://disk.yandex.ru/d/AbCd" --user 42 --watch
  speechkit submit AgACAgIAAxkBAAIB --user 42 --name voice.ogg`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().Int64VarP(&submitUserID, "user", "u", 0, "user (chat) id that receives the result")
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "", "source type: downloaded_file_path, upload_url or telegram_file_id")
	submitCmd.Flags().StringVarP(&submitName, "name", "n", "", "original file name")
	submitCmd.Flags().BoolVarP(&submitWatch, "watch", "w", false, "follow progress until the run finishes")
	_ = submitCmd.MarkFlagRequired("user")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	source, err := resolveSource(args[0], submitType)
	if err != nil {
		return err
	}

	name := submitName
	if name == "" && source.Kind == models.SourceDownloadedPath {
		name = filepath.Base(source.Value)
	}

	res, err := apiClient.Submit(ctx, models.JobInput{
		UserID:           submitUserID,
		Source:           source,
		OriginalFilename: name,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	fmt.Printf("Started run %s (%s)\n", res.RunID, res.Status)
	if !submitWatch {
		return nil
	}
	return watchRun(ctx, res.RunID, res.Status)
}

// resolveSource builds a FileSource from the argument. Local paths are made absolute
// because the server resolves them in its own working directory.
func resolveSource(arg, kind string) (models.FileSource, error) {
	if kind == "" {
		kind = string(detectKind(arg))
	}

	source := models.FileSource{Kind: models.SourceKind(kind), Value: arg}
	if source.Kind == models.SourceDownloadedPath {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return models.FileSource{}, fmt.Errorf("resolve path: %w", err)
		}
		source.Value = abs
	}
	if !source.Valid() {
		return models.FileSource{}, fmt.Errorf("invalid source %q of type %q", arg, kind)
	}
	return source, nil
}

func detectKind(arg string) models.SourceKind {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return models.SourceUploadURL
	}
	if _, err := os.Stat(arg); err == nil {
		return models.SourceDownloadedPath
	}
	return models.SourceChatFile
}
