package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"opto/internal/config"
	"opto/internal/logger"
	"opto/internal/pkg/circuit"
	"opto/internal/pkg/text"
)

const (
	restPollInterval    = 2 * time.Second
	restSettleGrace     = 30 * time.Second
	restBreakerFailures = 5
	restBreakerCooldown = time.Minute
)

// REST 经由 HTTP API 下单的真实场所客户端。
type REST struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	breaker    *circuit.Breaker
}

func NewREST(cfg config.Venue) (*REST, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("venue.api_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 venue.api_url 失败: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &REST{
		baseURL:    parsed,
		token:      strings.TrimSpace(cfg.APIToken),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.NewBreaker("venue", restBreakerFailures, restBreakerCooldown),
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (r *REST) SetHTTPClient(client *http.Client) {
	r.httpClient = client
}

type orderPayload struct {
	ClientID          string  `json:"client_id"`
	Symbol            string  `json:"symbol"`
	Direction         string  `json:"direction"`
	Amount            float64 `json:"amount"`
	ExpirationMinutes int     `json:"expiration_minutes"`
}

func (r *REST) PlaceTrades(ctx context.Context, symbol, direction string, amount float64, count, expirationMinutes int) ([]TradeHandle, error) {
	if count <= 0 {
		return nil, fmt.Errorf("下单笔数非法: %d", count)
	}
	handles := make([]TradeHandle, 0, count)
	for i := 0; i < count; i++ {
		payload := orderPayload{
			ClientID:          uuid.NewString(),
			Symbol:            symbol,
			Direction:         direction,
			Amount:            amount,
			ExpirationMinutes: expirationMinutes,
		}
		body, err := r.postOrder(ctx, payload)
		if err != nil {
			// 已提交的订单由调用方决定是否继续等待结算。
			return handles, fmt.Errorf("第 %d/%d 笔下单失败: %w", i+1, count, err)
		}
		doc := gjson.ParseBytes(body)
		id := doc.Get("id").String()
		if id == "" {
			id = doc.Get("order_id").String()
		}
		if id == "" {
			return handles, fmt.Errorf("第 %d/%d 笔下单响应缺少订单号: %s", i+1, count, text.Truncate(strings.TrimSpace(string(body)), 256))
		}
		handles = append(handles, TradeHandle{
			ID:                id,
			Symbol:            symbol,
			Direction:         direction,
			Amount:            amount,
			ExpirationMinutes: expirationMinutes,
			PlacedAt:          time.Now(),
			EntryPrice:        doc.Get("entry_price").Float(),
		})
	}
	return handles, nil
}

func (r *REST) AwaitResult(ctx context.Context, handle TradeHandle) (TradeResult, error) {
	deadline := handle.PlacedAt.
		Add(time.Duration(handle.ExpirationMinutes) * time.Minute).
		Add(restSettleGrace)
	ticker := time.NewTicker(restPollInterval)
	defer ticker.Stop()

	for {
		body, err := r.getOrder(ctx, handle.ID)
		if err == nil {
			doc := gjson.ParseBytes(body)
			switch strings.ToLower(doc.Get("status").String()) {
			case "settled", "closed", "expired":
				win := doc.Get("success").Bool() ||
					strings.EqualFold(doc.Get("result").String(), "win")
				pnl := doc.Get("profit_loss").Float()
				if pnl == 0 && !doc.Get("profit_loss").Exists() {
					if win {
						pnl = handle.Amount * doc.Get("payout").Float()
					} else {
						pnl = -handle.Amount
					}
				}
				return TradeResult{Success: win, ProfitLoss: pnl}, nil
			case "rejected", "canceled":
				return TradeResult{}, fmt.Errorf("订单 %s 被场所拒绝", handle.ID)
			}
		} else {
			logger.Warnf("查询订单 %s 失败: %v", handle.ID, err)
		}
		if time.Now().After(deadline) {
			return TradeResult{}, fmt.Errorf("订单 %s 超过结算期限仍未结算", handle.ID)
		}
		select {
		case <-ctx.Done():
			return TradeResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *REST) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

func (r *REST) postOrder(ctx context.Context, payload orderPayload) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return r.do(ctx, http.MethodPost, "/orders", raw)
}

func (r *REST) getOrder(ctx context.Context, id string) ([]byte, error) {
	return r.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil)
}

func (r *REST) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var out []byte
	err := r.breaker.Do(func() error {
		endpoint := *r.baseURL
		endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("%s %s 返回 %d: %s", method, path, resp.StatusCode, text.Truncate(strings.TrimSpace(string(raw)), 256))
		}
		out = raw
		return nil
	})
	return out, err
}

