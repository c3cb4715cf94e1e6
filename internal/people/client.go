// Package people はGoogle People APIから電話番号を取得する機能を提供する。
// 取得はベストエフォートで、失敗してもログインフローは継続する。
package people

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const (
	// defaultEndpoint はPeople APIのme取得エンドポイント。
	defaultEndpoint = "https://people.googleapis.com/v1/people/me"
)

// Client はGoogle People APIのクライアント。
// personFields=phoneNumbersで自分の電話番号を取得する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// personResponse はPeople APIのレスポンスのうち電話番号部分。
type personResponse struct {
	PhoneNumbers []struct {
		Value string `json:"value"`
	} `json:"phoneNumbers"`
}

// FetchPhone はアクセストークンで本人の電話番号を取得する。
// 複数登録されている場合は先頭の番号を返す。未登録の場合は空文字列を返す。
// 取得失敗時はエラーを返す（呼び出し元が続行を判断する）。
func (c *Client) FetchPhone(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?personFields=phoneNumbers", nil)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("People APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("People APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("People APIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var person personResponse
	if err := json.Unmarshal(body, &person); err != nil {
		c.logger.Warn("People APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if len(person.PhoneNumbers) == 0 {
		return "", nil
	}

	return person.PhoneNumbers[0].Value, nil
}
