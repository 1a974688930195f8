package commando

import (
	"context"
	"math/rand"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	AmountAny = "any"

	labelLen     = 8
	labelCharset = "abcdefghijklmnopqrstuvwxyz"

	StatusPaid    = "paid"
	StatusUnpaid  = "unpaid"
	StatusExpired = "expired"
)

// LastUnusedAddress creates a fresh any-amount invoice under a random label
// and returns its bolt11 string.
func (c *Client) LastUnusedAddress(ctx context.Context) (string, error) {
	resp, err := c.NewInvoice(ctx, AmountAny, randomLabel(c.rng, labelLen))
	if err != nil {
		return "", err
	}
	bolt11 := gjson.GetBytes(resp, "result.bolt11")
	if bolt11.Type != gjson.String || bolt11.Str == "" {
		return "", genericf("%s: reply has no result.bolt11", MethodInvoice)
	}
	return bolt11.Str, nil
}

// IsMyAddress reports whether invoice decodes as valid and is payable to
// this client's node.
func (c *Client) IsMyAddress(ctx context.Context, invoice string) (bool, error) {
	resp, err := c.Decode(ctx, invoice)
	if err != nil {
		return false, err
	}
	valid := gjson.GetBytes(resp, "result.valid")
	if !valid.IsBool() {
		return false, genericf("%s: reply has no result.valid", MethodDecode)
	}
	if !valid.Bool() {
		return false, nil
	}
	payee := gjson.GetBytes(resp, "result.payee")
	if payee.Type != gjson.String {
		return false, genericf("%s: reply has no result.payee", MethodDecode)
	}
	return strings.EqualFold(payee.Str, c.cfg.PeerID), nil
}

// BalanceOf returns the millisatoshis received on invoice. Unpaid and
// expired invoices report zero.
func (c *Client) BalanceOf(ctx context.Context, invoice string) (uint64, error) {
	decoded, err := c.Decode(ctx, invoice)
	if err != nil {
		return 0, err
	}
	hash := gjson.GetBytes(decoded, "result.payment_hash")
	if hash.Type != gjson.String || hash.Str == "" {
		return 0, genericf("%s: reply has no result.payment_hash", MethodDecode)
	}

	listed, err := c.GetInvoice(ctx, hash.Str)
	if err != nil {
		return 0, err
	}
	inv := gjson.GetBytes(listed, "result.invoices.0")
	if !inv.Exists() {
		return 0, genericf("%s: no invoice for payment_hash=%s", MethodListInvoices, hash.Str)
	}

	switch status := inv.Get("status").String(); status {
	case StatusPaid:
		return parseMsat(inv.Get("amount_received_msat"))
	case StatusUnpaid, StatusExpired:
		return 0, nil
	default:
		log.Debug().Msgf("commando.Client balance payment_hash=%s status=%q treated as unpaid", hash.Str, status)
		return 0, nil
	}
}

// Network returns the chain the node runs on, e.g. "bitcoin" or "testnet".
func (c *Client) Network(ctx context.Context) (string, error) {
	resp, err := c.GetInfo(ctx)
	if err != nil {
		return "", err
	}
	network := gjson.GetBytes(resp, "result.network")
	if network.Type != gjson.String || network.Str == "" {
		return "", genericf("%s: reply has no result.network", MethodGetInfo)
	}
	return network.Str, nil
}

// parseMsat accepts both "5000msat" and 5000.
func parseMsat(r gjson.Result) (uint64, error) {
	var raw string
	switch r.Type {
	case gjson.Number:
		raw = r.Raw
	case gjson.String:
		raw = strings.TrimSuffix(r.Str, "msat")
	default:
		return 0, genericf("%s: paid invoice has no amount_received_msat", MethodListInvoices)
	}
	msat, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, genericf("%s: amount_received_msat=%q: %v", MethodListInvoices, r.Raw, err)
	}
	return msat, nil
}

func randomLabel(rng *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(labelCharset[rng.Intn(len(labelCharset))])
	}
	return b.String()
}
