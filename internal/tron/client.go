// Package tron looks up USDT TRC20 transfers through the Tronscan API.
package tron

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cidbank/internal/money"
	"cidbank/internal/services"
)

// USDTContract is the USDT token contract on the TRON network.
const USDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

const usdtDecimals = 6

type Client struct {
	httpClient    *http.Client
	baseURL       string
	walletAddress string
}

func NewClient(baseURL, walletAddress string) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		baseURL:       baseURL,
		walletAddress: walletAddress,
	}
}

type transactionInfo struct {
	Hash        string `json:"hash"`
	Confirmed   bool   `json:"confirmed"`
	BlockNumber int64  `json:"blockNumber"`
	Transfers   []struct {
		ContractAddress string `json:"contract_address"`
		FromAddress     string `json:"from_address"`
		ToAddress       string `json:"to_address"`
		Quant           string `json:"quant"`
	} `json:"trc20TransferInfo"`
}

type systemStatus struct {
	Database struct {
		Block int64 `json:"block"`
	} `json:"database"`
}

// Lookup fetches the transaction and reduces it to the one USDT transfer
// addressed to the deposit wallet. A transaction without such a transfer
// comes back Found with an empty ToAddress.
func (c *Client) Lookup(ctx context.Context, txid string) (services.ChainTransfer, error) {
	var info transactionInfo
	if err := c.getJSON(ctx, "/transaction-info?hash="+url.QueryEscape(txid), &info); err != nil {
		return services.ChainTransfer{}, err
	}
	if info.Hash == "" {
		return services.ChainTransfer{}, nil
	}

	transfer := services.ChainTransfer{Found: true}
	for _, t := range info.Transfers {
		if t.ContractAddress != USDTContract || t.ToAddress != c.walletAddress {
			continue
		}
		amountMinor, err := money.FromTokenUnits(t.Quant, usdtDecimals)
		if err != nil {
			return services.ChainTransfer{}, fmt.Errorf("tron: parse transfer amount %q: %w", t.Quant, err)
		}
		transfer.ToAddress = t.ToAddress
		transfer.FromAddress = t.FromAddress
		transfer.AmountMinor = amountMinor
		break
	}

	if !info.Confirmed {
		return transfer, nil
	}
	currentBlock, err := c.latestBlock(ctx)
	if err != nil {
		return services.ChainTransfer{}, err
	}
	if currentBlock > info.BlockNumber {
		transfer.Confirmations = currentBlock - info.BlockNumber
	}
	return transfer, nil
}

func (c *Client) latestBlock(ctx context.Context) (int64, error) {
	var status systemStatus
	if err := c.getJSON(ctx, "/system/status", &status); err != nil {
		return 0, err
	}
	return status.Database.Block, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("tron: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tron: request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tron: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tron: decode response: %w", err)
	}
	return nil
}
