package cli

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/hitoshi/geekcms/internal/model"
	"github.com/hitoshi/geekcms/internal/output"
	"github.com/hitoshi/geekcms/internal/session"
	"github.com/hitoshi/geekcms/internal/transport"
)

// describeError は操作の失敗を終了コード付きのCLIErrorに変換する。
func describeError(op string, err error) error {
	if err == nil {
		return nil
	}
	var cliErr *output.CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	e := &output.CLIError{
		Summary:  op + "に失敗しました",
		Detail:   err.Error(),
		ExitCode: output.ExitGeneral,
		Err:      err,
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		msgs := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			msgs = append(msgs, f.Message)
		}
		e.Summary = op + "の入力内容に誤りがあります"
		e.Detail = strings.Join(msgs, " ")
		e.ExitCode = output.ExitUsageError
		return e
	}

	if errors.Is(err, session.ErrInFlight) {
		e.Suggestion = "処理の完了を待ってから再実行してください"
		return e
	}

	var terr *transport.Error
	if !errors.As(err, &terr) {
		return e
	}

	switch terr.Kind {
	case transport.KindUnauthorized:
		e.Summary = "認証の有効期限が切れました"
		e.Detail = "サーバーが認可トークンを受け付けませんでした。保存されたトークンは破棄されました"
		e.Suggestion = "geekctl login で再度ログインしてください"
		e.ExitCode = output.ExitAuthRequired
	case transport.KindNetwork:
		e.Suggestion = "api.base_url とネットワーク接続を確認してください"
		e.ExitCode = output.ExitAPIError
		if isTimeout(err) {
			e.Summary = op + "がタイムアウトしました"
			e.Suggestion = "しばらくしてから再実行するか、api.timeout を延ばしてください"
			e.ExitCode = output.ExitTimeout
		}
	case transport.KindStatus:
		e.ExitCode = output.ExitAPIError
		if terr.APIError != nil {
			e.Detail = terr.APIError.Message
			e.Suggestion = terr.APIError.Action
		}
	case transport.KindMalformed:
		e.Detail = "サーバーの応答を解釈できませんでした: " + err.Error()
		e.ExitCode = output.ExitAPIError
	}
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func usageError(summary, suggestion string) error {
	return &output.CLIError{
		Summary:    summary,
		Suggestion: suggestion,
		ExitCode:   output.ExitUsageError,
	}
}
