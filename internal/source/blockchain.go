package source

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/balance-tracker/internal/types"
)

const assetETH types.Asset = "ETH"

// Blockchain queries the ETH balances of a fixed set of on-chain accounts
// over JSON-RPC. It produces the "blockchain" source entry.
type Blockchain struct {
	client   *ethclient.Client
	accounts []common.Address
	pricer   Pricer
}

// NewBlockchain dials the RPC endpoint and validates the account addresses.
func NewBlockchain(rpcURL string, accounts []string, pricer Pricer) (*Blockchain, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("blockchain RPC URL is not configured")
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum RPC: %w", err)
	}

	parsed := make([]common.Address, 0, len(accounts))
	for _, account := range accounts {
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("invalid ethereum address: %s", account)
		}
		parsed = append(parsed, common.HexToAddress(account))
	}

	return &Blockchain{client: client, accounts: parsed, pricer: pricer}, nil
}

// Close releases the RPC connection.
func (b *Blockchain) Close() {
	b.client.Close()
}

// QueryBalances sums the latest ETH balance over all tracked accounts and
// values the total in USD.
func (b *Blockchain) QueryBalances(ctx context.Context) (types.AssetBalances, error) {
	total := decimal.Zero
	for _, account := range b.accounts {
		wei, err := b.client.BalanceAt(ctx, account, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to query balance of %s: %w", account.Hex(), err)
		}
		// wei -> ETH: shift the decimal point 18 places.
		total = total.Add(decimal.NewFromBigInt(wei, -18))
	}

	out := make(types.AssetBalances)
	if total.IsZero() {
		return out, nil
	}

	price, err := b.pricer.QueryUSDPrice(ctx, assetETH)
	if err != nil {
		return nil, err
	}
	out[assetETH] = types.Balance{
		Amount:   total,
		USDValue: total.Mul(price),
	}

	return out, nil
}
