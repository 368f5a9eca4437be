package zpay

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrGateway = errors.New("zpay gateway error")

type Options struct {
	MerchantID string
	SecretKey  string
	APIURL     string
	Timeout    time.Duration
}

type Client struct {
	merchantID string
	secret     string
	apiURL     string
	hc         *http.Client
	log        *zap.Logger
	now        func() time.Time
}

func New(o Options, l *zap.Logger) *Client {
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &Client{
		merchantID: o.MerchantID,
		secret:     o.SecretKey,
		apiURL:     strings.TrimRight(o.APIURL, "/"),
		hc:         &http.Client{Timeout: o.Timeout},
		log:        l.Named("zpay"),
		now:        time.Now,
	}
}

// Sign key 排序后拼 k=v&...&key=secret，MD5 大写
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	b.WriteString("&key=")
	b.WriteString(secret)
	sum := md5.Sum([]byte(b.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Notification 支付回调
type Notification struct {
	OrderID   string `json:"order_id"   binding:"required"`
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"     binding:"required"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"  binding:"required"`
}

func (n Notification) params() map[string]string {
	return map[string]string{
		"order_id":   n.OrderID,
		"payment_id": n.PaymentID,
		"amount":     n.Amount,
		"currency":   n.Currency,
		"status":     n.Status,
		"timestamp":  n.Timestamp,
	}
}

func (c *Client) Verify(n Notification) bool {
	want := Sign(n.params(), c.secret)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToUpper(n.Signature))) == 1
}

// SignNotification 生成回调签名，联调和测试用
func (c *Client) SignNotification(n Notification) string { return Sign(n.params(), c.secret) }

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateOrderID TA + userId 前 8 位 + 毫秒时间戳 + 6 位随机，整体大写
func GenerateOrderID(userID string, now time.Time) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	var b strings.Builder
	b.WriteString("TA")
	b.WriteString(prefix)
	b.WriteString(strconv.FormatInt(now.UnixMilli(), 10))
	max := big.NewInt(int64(len(base36)))
	for i := 0; i < 6; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			n = big.NewInt(now.UnixNano() % int64(len(base36)))
		}
		b.WriteByte(base36[n.Int64()])
	}
	return strings.ToUpper(b.String())
}

type OrderRequest struct {
	OrderID   string
	Amount    float64
	Currency  string
	Subject   string
	ReturnURL string
	CancelURL string
	NotifyURL string
}

func (c *Client) CreateOrder(ctx context.Context, r OrderRequest) (string, error) {
	params := map[string]string{
		"merchant_id": c.merchantID,
		"order_id":    r.OrderID,
		"amount":      strconv.FormatFloat(r.Amount, 'f', 2, 64),
		"currency":    r.Currency,
		"subject":     r.Subject,
		"return_url":  r.ReturnURL,
		"cancel_url":  r.CancelURL,
		"notify_url":  r.NotifyURL,
		"timestamp":   strconv.FormatInt(c.now().Unix(), 10),
	}
	params["signature"] = Sign(params, c.secret)
	body, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/create_order", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TranslatorAgent/1.0")

	var out struct {
		Success    bool   `json:"success"`
		PaymentURL string `json:"payment_url"`
		Message    string `json:"message"`
	}
	if err := c.do(req, &out); err != nil {
		return "", err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "Payment order creation failed"
		}
		return "", fmt.Errorf("%w: %s", ErrGateway, msg)
	}
	c.log.Info("zpay order created", zap.String("order_id", r.OrderID))
	return out.PaymentURL, nil
}

type OrderStatus struct {
	Status    string
	PaymentID string
}

func (c *Client) QueryOrder(ctx context.Context, orderID string) (*OrderStatus, error) {
	params := map[string]string{
		"merchant_id": c.merchantID,
		"order_id":    orderID,
		"timestamp":   strconv.FormatInt(c.now().Unix(), 10),
	}
	params["signature"] = Sign(params, c.secret)
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/query_order?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	var out struct {
		Success   bool   `json:"success"`
		Status    string `json:"status"`
		PaymentID string `json:"payment_id"`
		Message   string `json:"message"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "Order query failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrGateway, msg)
	}
	return &OrderStatus{Status: out.Status, PaymentID: out.PaymentID}, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		if resp.StatusCode >= 300 {
			return fmt.Errorf("%w: status=%d", ErrGateway, resp.StatusCode)
		}
		return fmt.Errorf("decode zpay response: %w", err)
	}
	return nil
}
