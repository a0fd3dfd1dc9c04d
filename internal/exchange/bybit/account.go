package bybit

import (
	"context"
	"encoding/json"
	"fmt"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
)

// AccountType represents different account types in Bybit
type AccountType string

const (
	AccountTypeUnified AccountType = "UNIFIED"
	AccountTypeSpot    AccountType = "SPOT"
	AccountTypeFund    AccountType = "FUND"
)

// Balance represents a coin balance in the account
type Balance struct {
	Coin                string  `json:"coin"`
	WalletBalance       float64 `json:"walletBalance"`
	AvailableToTrade    float64 `json:"availableToTrade"`
	AvailableToWithdraw float64 `json:"availableToWithdraw"`
	Locked              float64 `json:"locked"`
}

// AccountInfo represents account balance information
type AccountInfo struct {
	AccountType           string    `json:"accountType"`
	TotalEquity           string    `json:"totalEquity"`
	TotalWalletBalance    string    `json:"totalWalletBalance"`
	TotalAvailableBalance string    `json:"totalAvailableBalance"`
	Coin                  []Balance `json:"coin"`
}

// GetAccountBalance retrieves account balance information
func (c *Client) GetAccountBalance(ctx context.Context, accountType AccountType, coins ...string) (*AccountInfo, error) {
	params := map[string]interface{}{
		"accountType": string(accountType),
	}

	if len(coins) > 0 {
		coinStr := ""
		for i, coin := range coins {
			if i > 0 {
				coinStr += ","
			}
			coinStr += coin
		}
		params["coin"] = coinStr
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	accountInfo, err := c.parseAccountBalanceResponse(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account balance response: %w", err)
	}

	return accountInfo, nil
}

// GetCoinBalance retrieves balance for a specific coin
func (c *Client) GetCoinBalance(ctx context.Context, accountType AccountType, coin string) (*Balance, error) {
	accountInfo, err := c.GetAccountBalance(ctx, accountType, coin)
	if err != nil {
		return nil, err
	}

	for _, balance := range accountInfo.Coin {
		if balance.Coin == coin {
			return &balance, nil
		}
	}

	return nil, fmt.Errorf("coin %s not found in account", coin)
}

// GetTradableBalance returns the available balance for trading a specific coin
func (c *Client) GetTradableBalance(ctx context.Context, accountType AccountType, coin string) (float64, error) {
	balance, err := c.GetCoinBalance(ctx, accountType, coin)
	if err != nil {
		return 0, err
	}

	return balance.AvailableToTrade, nil
}

// HasSufficientBalance checks if the account has sufficient balance for a trade
func (c *Client) HasSufficientBalance(ctx context.Context, accountType AccountType, coin string, requiredAmount float64) (bool, error) {
	balance, err := c.GetTradableBalance(ctx, accountType, coin)
	if err != nil {
		return false, err
	}

	return balance >= requiredAmount, nil
}

// parseAccountBalanceResponse parses the account balance API response
func (c *Client) parseAccountBalanceResponse(response interface{}) (*AccountInfo, error) {
	serverResp, ok := response.(*bybit_api.ServerResponse)
	if !ok {
		return nil, fmt.Errorf("invalid response type")
	}

	if err := ParseAPIError(serverResp.RetCode, serverResp.RetMsg); err != nil {
		return nil, err
	}

	resultBytes, err := json.Marshal(serverResp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	var walletResult struct {
		List []struct {
			AccountType           string `json:"accountType"`
			TotalEquity           string `json:"totalEquity"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin                string `json:"coin"`
				WalletBalance       string `json:"walletBalance"`
				AvailableToTrade    string `json:"availableToTrade"`
				AvailableToWithdraw string `json:"availableToWithdraw"`
				TotalOrderIM        string `json:"totalOrderIM"`
				TotalPositionIM     string `json:"totalPositionIM"`
			} `json:"coin"`
		} `json:"list"`
	}

	if err := json.Unmarshal(resultBytes, &walletResult); err != nil {
		return nil, fmt.Errorf("failed to unmarshal wallet result: %w", err)
	}

	if len(walletResult.List) == 0 {
		return nil, fmt.Errorf("no account data found")
	}

	account := walletResult.List[0]
	accountInfo := &AccountInfo{
		AccountType:           account.AccountType,
		TotalEquity:           account.TotalEquity,
		TotalWalletBalance:    account.TotalWalletBalance,
		TotalAvailableBalance: account.TotalAvailableBalance,
		Coin:                  make([]Balance, len(account.Coin)),
	}

	for i, coin := range account.Coin {
		accountInfo.Coin[i] = Balance{
			Coin:                coin.Coin,
			WalletBalance:       parseFloat64(coin.WalletBalance),
			AvailableToTrade:    parseFloat64(coin.AvailableToTrade),
			AvailableToWithdraw: parseFloat64(coin.AvailableToWithdraw),
			Locked:              parseFloat64(coin.TotalOrderIM) + parseFloat64(coin.TotalPositionIM),
		}
	}

	return accountInfo, nil
}
