package twitchtoken

import (
	"fmt"
	"html"
	"net/http"

	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%s</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            height: 100vh;
            margin: 0;
            background: %s;
        }
        .container {
            background: white;
            padding: 40px;
            border-radius: 10px;
            text-align: center;
            max-width: 400px;
        }
        p { color: #6b7280; }
    </style>
</head>
<body>
    <div class="container">
        <h1>%s</h1>
        <p>%s</p>
    </div>
</body>
</html>
`

// CallbackHandler returns the handler for the OAuth redirect (/callback).
func (a *Authenticator) CallbackHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		// エラーパラメータをチェック
		if errParam := q.Get("error"); errParam != "" {
			errDesc := q.Get("error_description")
			logger.Error("OAuth error", zap.String("error", errParam), zap.String("description", errDesc))
			writePage(w, http.StatusBadRequest, false, "認証エラー", errParam+": "+errDesc)
			return
		}

		if !a.checkState(q.Get("state")) {
			logger.Warn("OAuth callback with unknown state")
			writePage(w, http.StatusBadRequest, false, "認証エラー", "state mismatch")
			return
		}

		code := q.Get("code")
		if code == "" {
			writePage(w, http.StatusBadRequest, false, "認証エラー", "code not found")
			return
		}

		t, err := a.Exchange(r.Context(), code)
		if err != nil {
			logger.Error("Failed to exchange OAuth code", zap.Error(err))
			writePage(w, http.StatusInternalServerError, false, "認証エラー", err.Error())
			return
		}

		logger.Info("Twitch authorization completed")
		a.deliver(t)
		writePage(w, http.StatusOK, true, "認証成功", "Twitchアカウントとの連携が完了しました。このウィンドウは閉じて構いません。")
	})
}

func writePage(w http.ResponseWriter, status int, ok bool, title, message string) {
	background := "linear-gradient(135deg, #ef4444 0%, #dc2626 100%)"
	if ok {
		background = "linear-gradient(135deg, #667eea 0%, #764ba2 100%)"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageTemplate, html.EscapeString(title), background, html.EscapeString(title), html.EscapeString(message))
}
