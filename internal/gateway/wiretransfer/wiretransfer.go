// Package wiretransfer is an offline gateway: the customer pays by bank
// transfer using the order number as variable symbol.
package wiretransfer

import (
	"context"
	"strconv"
	"strings"

	"commerce-service/internal/gateway"
	"commerce-service/internal/invoicing"
	"commerce-service/internal/models"
)

const Key = "wiretransfer"

type Gateway struct {
	bank      invoicing.Bank
	ordersURL string
}

func New(bank invoicing.Bank, ordersURL string) *Gateway {
	return &Gateway{bank: bank, ordersURL: strings.TrimRight(ordersURL, "/")}
}

func (g *Gateway) Key() string { return Key }

// PaymentURL страница заказа с реквизитами; внешней переадресации нет.
func (g *Gateway) PaymentURL(_ context.Context, o *models.Order) (string, error) {
	return g.ordersURL + "/" + o.ID.String(), nil
}

func (g *Gateway) RenderButton(ctx context.Context, o *models.Order) (*gateway.Button, error) {
	u, err := g.PaymentURL(ctx, o)
	if err != nil {
		return nil, err
	}
	return &gateway.Button{Label: "Payment details", URL: u, Method: "GET"}, nil
}

func (g *Gateway) RenderInformation(o *models.Order) *gateway.Information {
	return &gateway.Information{
		Title: "Wire transfer",
		Lines: []gateway.InfoLine{
			{Label: "Bank", Value: g.bank.Name},
			{Label: "IBAN", Value: g.bank.IBAN},
			{Label: "SWIFT", Value: g.bank.SWIFT},
			{Label: "Variable symbol", Value: strconv.FormatInt(o.Number, 10)},
			{Label: "Amount", Value: o.Total.StringFixed(2) + " " + o.Currency},
		},
	}
}

// HandleResult оплата подтверждается выпиской из банка, а не колбэком.
func (g *Gateway) HandleResult(context.Context, gateway.Callback) (gateway.Result, error) {
	return gateway.Result{}, gateway.ErrNotSupported
}
