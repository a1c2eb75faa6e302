// Package provider оборачивает HTTP API сервиса верификационных номеров
// (handler_api.php). Провайдер отвечает то plain text'ом с маркерами, то
// JSON'ом, то JSON'ом завёрнутым в конверт {"raw":"..."} — клиент пробует
// декодеры по порядку и отдаёт наружу типизированный результат.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/welovename555/smsdesk/internal/types/catalog"
	"github.com/welovename555/smsdesk/internal/types/order"
)

// Коды push-статусов провайдера.
const (
	SetStatusReady    = 1
	SetStatusComplete = 6
	SetStatusCancel   = 8
)

var (
	ErrBadKey             = errors.New("provider rejected api key")
	ErrUnexpectedResponse = errors.New("unexpected provider response")
)

// AcquireError — провайдер отказал в выдаче номера (NO_NUMBERS, NO_BALANCE и т.п.).
type AcquireError struct {
	Payload string
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("provider declined purchase: %s", e.Payload)
}

// Number — результат успешной покупки номера.
type Number struct {
	ActivationID string
	PhoneNumber  string
	Cost         string
	Operator     string
}

// StatusResult — результат опроса доставки кода.
type StatusResult struct {
	Status order.OrderStatus
	Code   string
}

type HeroClient struct {
	Client  *http.Client
	BaseURL string
}

var balanceRe = regexp.MustCompile(`ACCESS_BALANCE:([0-9.]+)`)

func (c *HeroClient) do(ctx context.Context, apiKey, action string, params map[string]string) ([]byte, error) {
	q := url.Values{}
	q.Set("api_key", apiKey)
	q.Set("action", action)
	for k, v := range params {
		q.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, clip(string(body)))
	}
	return body, nil
}

// unwrap снимает прокси-конверт {"raw":"..."}; всё остальное возвращает как есть.
func unwrap(body []byte) string {
	var env struct {
		Raw *string `json:"raw"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Raw != nil {
		return *env.Raw
	}
	return string(body)
}

func decodeLoose(text string, v any) error {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	return dec.Decode(v)
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}

func (c *HeroClient) GetBalance(ctx context.Context, apiKey string) (float64, error) {
	body, err := c.do(ctx, apiKey, "getBalance", nil)
	if err != nil {
		return 0, err
	}
	text := unwrap(body)
	if strings.Contains(text, "BAD_KEY") || strings.HasPrefix(strings.TrimSpace(text), "ERROR") {
		return 0, ErrBadKey
	}
	if m := balanceRe.FindStringSubmatch(text); m != nil {
		return strconv.ParseFloat(m[1], 64)
	}
	var flat struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && flat.Balance != "" {
		return strconv.ParseFloat(flat.Balance, 64)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnexpectedResponse, clip(text))
}

func (c *HeroClient) GetCountries(ctx context.Context, apiKey string) ([]catalog.Country, error) {
	body, err := c.do(ctx, apiKey, "getCountries", nil)
	if err != nil {
		return nil, err
	}
	var all []catalog.Country
	if err := json.Unmarshal(body, &all); err != nil {
		if err := decodeLoose(unwrap(body), &all); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, clip(unwrap(body)))
		}
	}
	visible := all[:0]
	for _, c := range all {
		if c.Visible == 1 {
			visible = append(visible, c)
		}
	}
	return visible, nil
}

func (c *HeroClient) GetServices(ctx context.Context, apiKey, country string) ([]catalog.Service, error) {
	body, err := c.do(ctx, apiKey, "getServicesList", map[string]string{"country": country, "lang": "en"})
	if err != nil {
		return nil, err
	}
	var out struct {
		Services []catalog.Service `json:"services"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Services == nil {
		if err := decodeLoose(unwrap(body), &out); err != nil || out.Services == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, clip(unwrap(body)))
		}
	}
	return out.Services, nil
}

// GetPrice разбирает вложенные одно-ключевые объекты {country:{service:{cost,count}}}.
func (c *HeroClient) GetPrice(ctx context.Context, apiKey, service, country string) (*catalog.PriceInfo, error) {
	body, err := c.do(ctx, apiKey, "getPrices", map[string]string{"service": service, "country": country})
	if err != nil {
		return nil, err
	}
	var nested map[string]map[string]struct {
		Cost  any `json:"cost"`
		Count any `json:"count"`
	}
	if err := decodeLoose(string(body), &nested); err != nil {
		if err := decodeLoose(unwrap(body), &nested); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, clip(unwrap(body)))
		}
	}
	for _, services := range nested {
		for _, p := range services {
			cost, ok := anyFloat(p.Cost)
			if !ok {
				continue
			}
			count, _ := anyFloat(p.Count)
			return &catalog.PriceInfo{Cost: cost, Count: int(count)}, nil
		}
	}
	return nil, fmt.Errorf("%w: no price data", ErrUnexpectedResponse)
}

func (c *HeroClient) GetNumber(ctx context.Context, apiKey, service, country string) (*Number, error) {
	body, err := c.do(ctx, apiKey, "getNumberV2", map[string]string{"service": service, "country": country})
	if err != nil {
		return nil, err
	}
	var raw struct {
		ActivationID       any    `json:"activationId"`
		PhoneNumber        string `json:"phoneNumber"`
		ActivationCost     any    `json:"activationCost"`
		Cost               any    `json:"cost"`
		ActivationOperator string `json:"activationOperator"`
		Operator           string `json:"operator"`
	}
	text := unwrap(body)
	if err := decodeLoose(string(body), &raw); err != nil || raw.ActivationID == nil {
		if err := decodeLoose(text, &raw); err != nil {
			return nil, &AcquireError{Payload: clip(text)}
		}
	}
	id := anyString(raw.ActivationID)
	if id == "" {
		return nil, &AcquireError{Payload: clip(text)}
	}

	cost := anyString(raw.ActivationCost)
	if cost == "" {
		cost = anyString(raw.Cost)
	}
	if cost == "" {
		cost = "0"
	}
	operator := raw.ActivationOperator
	if operator == "" {
		operator = raw.Operator
	}
	return &Number{
		ActivationID: id,
		PhoneNumber:  raw.PhoneNumber,
		Cost:         cost,
		Operator:     operator,
	}, nil
}

// GetStatus различает три текстовых маркера провайдера; всё прочее — ошибка
// клиента, которую вызывающий код волен трактовать как транзиентную.
func (c *HeroClient) GetStatus(ctx context.Context, apiKey, id string) (*StatusResult, error) {
	body, err := c.do(ctx, apiKey, "getStatus", map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(unwrap(body))
	switch {
	case strings.HasPrefix(text, "STATUS_OK"):
		code := ""
		if parts := strings.SplitN(text, ":", 2); len(parts) == 2 {
			code = strings.TrimSpace(parts[1])
		}
		return &StatusResult{Status: order.StatusReceived, Code: code}, nil
	case strings.HasPrefix(text, "STATUS_WAIT_CODE"):
		return &StatusResult{Status: order.StatusWaiting}, nil
	case strings.HasPrefix(text, "STATUS_CANCEL"):
		return &StatusResult{Status: order.StatusCancelled}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnexpectedResponse, clip(text))
}

// SetStatus проталкивает смену статуса наверх. Содержательного ответа у
// провайдера нет, успех — любой ACCESS_* маркер.
func (c *HeroClient) SetStatus(ctx context.Context, apiKey, id string, status int) error {
	body, err := c.do(ctx, apiKey, "setStatus", map[string]string{"id": id, "status": strconv.Itoa(status)})
	if err != nil {
		return err
	}
	text := strings.TrimSpace(unwrap(body))
	if strings.HasPrefix(text, "ACCESS_") {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, clip(text))
}

func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func anyFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	}
	return 0, false
}
