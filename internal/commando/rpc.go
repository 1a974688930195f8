package commando

import (
	"context"
	"encoding/json"
)

const (
	MethodDecode       = "decode"
	MethodGetInfo      = "getinfo"
	MethodInvoice      = "invoice"
	MethodListInvoices = "listinvoices"
)

// Decode asks the node to parse a bolt11/bolt12 string.
func (c *Client) Decode(ctx context.Context, invoice string) (json.RawMessage, error) {
	return c.Call(ctx, MethodDecode, []any{invoice})
}

func (c *Client) GetInfo(ctx context.Context) (json.RawMessage, error) {
	return c.Call(ctx, MethodGetInfo, nil)
}

// NewInvoice creates an invoice with an empty description. amount is a
// millisatoshi count or "any".
func (c *Client) NewInvoice(ctx context.Context, amount, label string) (json.RawMessage, error) {
	return c.Call(ctx, MethodInvoice, []any{amount, label, ""})
}

// GetInvoice looks up invoices by payment hash.
func (c *Client) GetInvoice(ctx context.Context, paymentHash string) (json.RawMessage, error) {
	return c.Call(ctx, MethodListInvoices, []any{nil, nil, paymentHash})
}
