// Package bankstatement fetches account statements from the Fio bank API
// and matches incoming transfers to orders by variable symbol.
package bankstatement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"commerce-service/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://www.fio.cz/ib_api/rest"
	dateLayout     = "2006-01-02"
)

var (
	ErrNotConfigured = errors.New("bank API token is not configured")
	ErrUpstream      = errors.New("bank API request failed")
)

// Transaction движение по счёту в нужных нам полях.
type Transaction struct {
	ID             string          `json:"id"`
	Date           string          `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Sender         string          `json:"sender"`
	SenderAccount  string          `json:"sender_account"`
	SenderBank     string          `json:"sender_bank"`
	VariableSymbol string          `json:"variable_symbol"`
	Information    string          `json:"information"`
	Type           string          `json:"type"`
	IssuedBy       string          `json:"issued_by"`
}

type Config struct {
	Token   string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *metrics.CircuitBreaker
	log     *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: resty.New().
			SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetRetryCount(0),
		breaker: metrics.NewCircuitBreaker("bank-statement", log),
		log:     log,
	}
}

func (c *Client) Enabled() bool { return c != nil && c.cfg.Token != "" }

// Fetch движения за период [from, to] включительно.
func (c *Client) Fetch(ctx context.Context, from, to time.Time) ([]Transaction, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	path := fmt.Sprintf("/periods/%s/%s/%s/transactions.json", c.cfg.Token, from.Format(dateLayout), to.Format(dateLayout))

	res, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.http.R().SetContext(ctx).Get(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
		}
		return resp.Body(), nil
	})
	if err != nil {
		return nil, err
	}
	txs, err := Parse(res.([]byte))
	if err != nil {
		return nil, err
	}
	c.log.Info("bank statement fetched", zap.Int("transactions", len(txs)))
	return txs, nil
}

type column struct {
	Value json.RawMessage `json:"value"`
}

type statement struct {
	AccountStatement struct {
		TransactionList struct {
			Transaction []map[string]*column `json:"transaction"`
		} `json:"transactionList"`
	} `json:"accountStatement"`
}

// колонки выписки Fio
const (
	colDate           = "column0"
	colAmount         = "column1"
	colSenderAccount  = "column2"
	colVariableSymbol = "column5"
	colType           = "column8"
	colIssuedBy       = "column9"
	colSender         = "column10"
	colSenderBank     = "column12"
	colCurrency       = "column14"
	colInformation    = "column16"
	colID             = "column22"
)

func Parse(body []byte) ([]Transaction, error) {
	var st statement
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("parse statement: %w", err)
	}
	rows := st.AccountStatement.TransactionList.Transaction
	out := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(text(row, colAmount))
		if err != nil {
			return nil, fmt.Errorf("parse amount of %s: %w", text(row, colID), err)
		}
		out = append(out, Transaction{
			ID:             text(row, colID),
			Date:           text(row, colDate),
			Amount:         amount,
			Currency:       text(row, colCurrency),
			Sender:         text(row, colSender),
			SenderAccount:  text(row, colSenderAccount),
			SenderBank:     text(row, colSenderBank),
			VariableSymbol: text(row, colVariableSymbol),
			Information:    text(row, colInformation),
			Type:           text(row, colType),
			IssuedBy:       text(row, colIssuedBy),
		})
	}
	return out, nil
}

// text значение колонки как строка; числа берутся в исходной записи.
func text(row map[string]*column, name string) string {
	c, ok := row[name]
	if !ok || c == nil || len(c.Value) == 0 || bytes.Equal(c.Value, []byte("null")) {
		return ""
	}
	if c.Value[0] == '"' {
		var s string
		if err := json.Unmarshal(c.Value, &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return string(c.Value)
}
