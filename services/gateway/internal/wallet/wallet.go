// Package wallet builds redirect URLs into the external NEAR wallet.
package wallet

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/accordsai/web4gateway/pkg/nearkey"
	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
)

// SignInURL asks the wallet to add publicKey as a function call key for
// contractID and come back to successURL or failureURL.
func SignInURL(walletURL, contractID string, publicKey nearkey.PublicKey, successURL, failureURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(walletURL, "/") + "/login/")
	if err != nil {
		return "", fmt.Errorf("wallet: parse url: %w", err)
	}
	q := url.Values{}
	q.Set("success_url", successURL)
	q.Set("failure_url", failureURL)
	q.Set("contract_id", contractID)
	q.Set("public_key", publicKey.String())
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SignTransactionsURL hands unsigned transactions to the wallet. The wallet
// replaces the placeholder key, nonce and block hash before signing.
func SignTransactionsURL(walletURL string, txs []chain.Transaction, callbackURL string) (string, error) {
	base, err := url.Parse(walletURL)
	if err != nil {
		return "", fmt.Errorf("wallet: parse url: %w", err)
	}
	encoded := make([]string, 0, len(txs))
	for _, tx := range txs {
		b, err := tx.Serialize()
		if err != nil {
			return "", err
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(b))
	}
	u := base.ResolveReference(&url.URL{Path: "sign"})
	q := url.Values{}
	q.Set("transactions", strings.Join(encoded, ","))
	q.Set("callbackUrl", callbackURL)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
