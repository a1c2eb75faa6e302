// Package market — вторичный маркетплейс цифровых товаров: та же схема
// "купил → получил результат", но без таймингов: вместо ожидания кода
// сразу приходит список учёток.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/welovename555/smsdesk/internal/types/market"
)

var ErrMarketRejected = errors.New("market rejected request")

type ShopClient struct {
	Client  *http.Client
	BaseURL string
}

// BuyResult — сырой результат покупки до разбора учёток.
type BuyResult struct {
	TransID string
	Lines   []string
}

func (c *ShopClient) do(ctx context.Context, apiKey, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("x-api-key", apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func (c *ShopClient) GetCatalog(ctx context.Context, apiKey string) ([]market.Category, error) {
	body, err := c.do(ctx, apiKey, http.MethodGet, "/products", nil)
	if err != nil {
		return nil, err
	}
	var wrapped struct {
		Categories []market.Category `json:"categories"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Categories != nil {
		return wrapped.Categories, nil
	}
	var bare []market.Category
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}
	return nil, fmt.Errorf("%w: unrecognized catalog shape", ErrMarketRejected)
}

// GetProfile терпит оба формата ответа: вложенный {status,data:{...}} и плоский.
func (c *ShopClient) GetProfile(ctx context.Context, apiKey string) (*market.Profile, error) {
	body, err := c.do(ctx, apiKey, http.MethodGet, "/profile", nil)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Status string `json:"status"`
		Error  string `json:"error"`
		Msg    string `json:"msg"`
		Data   *struct {
			Username string `json:"username"`
			Name     string `json:"name"`
			Money    any    `json:"money"`
			Balance  any    `json:"balance"`
			Email    string `json:"email"`
		} `json:"data"`
		Username string `json:"username"`
		Balance  any    `json:"balance"`
		Email    string `json:"email"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketRejected, strings.TrimSpace(string(body)))
	}
	if raw.Status == "error" || raw.Error != "" {
		msg := raw.Error
		if msg == "" {
			msg = raw.Msg
		}
		return nil, fmt.Errorf("%w: %s", ErrMarketRejected, msg)
	}

	p := &market.Profile{Username: raw.Username, Email: raw.Email, Balance: moneyString(raw.Balance)}
	if raw.Data != nil {
		p.Username = firstNonEmpty(raw.Data.Username, raw.Data.Name, p.Username)
		if b := moneyString(raw.Data.Money); b != "" {
			p.Balance = b
		} else if b := moneyString(raw.Data.Balance); b != "" {
			p.Balance = b
		}
		p.Email = firstNonEmpty(raw.Data.Email, p.Email)
	}
	if p.Balance == "" {
		p.Balance = "0"
	}
	return p, nil
}

func (c *ShopClient) Buy(ctx context.Context, apiKey, productID string, amount int) (*BuyResult, error) {
	payload := map[string]any{"productId": productID, "amount": amount}
	body, err := c.do(ctx, apiKey, http.MethodPost, "/buy", payload)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Status   string `json:"status"`
		Error    string `json:"error"`
		Msg      string `json:"msg"`
		TransID  string `json:"trans_id"`
		Data     any    `json:"data"`
		Accounts any    `json:"accounts"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketRejected, strings.TrimSpace(string(body)))
	}
	if raw.Status == "error" || raw.Error != "" {
		msg := raw.Error
		if msg == "" {
			msg = raw.Msg
		}
		return nil, fmt.Errorf("%w: %s", ErrMarketRejected, msg)
	}

	data := raw.Data
	if data == nil {
		data = raw.Accounts
	}
	return &BuyResult{TransID: raw.TransID, Lines: toLines(data)}, nil
}

func toLines(data any) []string {
	switch v := data.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s := strings.TrimSpace(fmt.Sprint(item))
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, line := range strings.Split(v, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
		return out
	}
	return nil
}

func moneyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseCredentials разбирает строки вида email|password (разделитель также
// ':' или таб). Строка без распознаваемой пары сохраняется как есть, чтобы
// оплаченный товар не потерялся из-за формата.
func ParseCredentials(lines []string) []market.Credential {
	var out []market.Credential
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parsed := false
		for _, sep := range []string{"|", ":", "\t"} {
			if !strings.Contains(line, sep) {
				continue
			}
			parts := strings.SplitN(line, sep, 2)
			email := strings.TrimSpace(parts[0])
			password := strings.TrimSpace(parts[1])
			if strings.Contains(email, "@") && password != "" {
				out = append(out, market.Credential{Email: email, Password: password})
				parsed = true
			}
			break
		}
		if !parsed {
			out = append(out, market.Credential{Email: line})
		}
	}
	return out
}
