package bybit

import (
	"context"
	"fmt"

	"github.com/ducminhle1904/confluence-bot/pkg/types"
)

// AccountType represents different account types in Bybit
type AccountType string

const (
	AccountTypeUnified  AccountType = "UNIFIED"
	AccountTypeContract AccountType = "CONTRACT"
)

// Snapshot returns wallet balance and equity of the unified account
func (c *Client) Snapshot(ctx context.Context) (types.AccountSnapshot, error) {
	params := map[string]interface{}{
		"accountType": string(AccountTypeUnified),
	}

	var snap types.AccountSnapshot
	err := c.retryRead(ctx, func() error {
		result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
		if err != nil {
			return fmt.Errorf("failed to get account balance: %w", err)
		}
		snap, err = parseWalletResponse(result)
		return err
	})
	if err != nil {
		return types.AccountSnapshot{}, marketDataError("wallet", err)
	}
	return snap, nil
}

// parseWalletResponse reads the account totals
func parseWalletResponse(response interface{}) (types.AccountSnapshot, error) {
	var walletResult struct {
		List []struct {
			AccountType        string `json:"accountType"`
			TotalEquity        string `json:"totalEquity"`
			TotalWalletBalance string `json:"totalWalletBalance"`
		} `json:"list"`
	}
	if err := decodeResult(response, &walletResult); err != nil {
		return types.AccountSnapshot{}, err
	}
	if len(walletResult.List) == 0 {
		return types.AccountSnapshot{}, fmt.Errorf("no wallet data found")
	}

	acct := walletResult.List[0]
	return types.AccountSnapshot{
		Balance:  parseFloat64(acct.TotalWalletBalance),
		Equity:   parseFloat64(acct.TotalEquity),
		Currency: "USD",
	}, nil
}
