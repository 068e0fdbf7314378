// Package chain implements the on-chain side of the venue connectivity
// layer: wallet ERC-20 balances, Aave reserve indexes, oracle prices, and
// protocol risk parameters, all read-only over JSON-RPC. The monitor never
// holds key material and never signs.
package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/basisops/fundmon/internal/domain"
)

// ray is the Aave fixed-point scale for indexes.
var ray = new(big.Float).SetFloat64(1e27)

// Function selectors for the raw eth_call reads.
var (
	selBalanceOf        = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	selScaledBalanceOf  = crypto.Keccak256([]byte("scaledBalanceOf(address)"))[:4]
	selNormalizedIncome = crypto.Keccak256([]byte("getReserveNormalizedIncome(address)"))[:4]
	selNormalizedDebt   = crypto.Keccak256([]byte("getReserveNormalizedVariableDebt(address)"))[:4]
	selGetConfiguration = crypto.Keccak256([]byte("getConfiguration(address)"))[:4]
	selGetAssetPrice    = crypto.Keccak256([]byte("getAssetPrice(address)"))[:4]
)

// ClientConfig holds RPC and contract addresses.
type ClientConfig struct {
	RPCURL string
	// WalletVenue keys the wallet balances; ProtocolVenue the Aave ones.
	WalletVenue   domain.Venue
	ProtocolVenue domain.Venue
	// WalletAddress is the monitored wallet.
	WalletAddress string
	// Tokens maps symbol to its contract address for every token read on
	// chain (plain ERC-20s, aTokens, and variable debt tokens).
	Tokens map[string]string
	// WalletSymbols and ProtocolSymbols split Tokens into the wallet and
	// Aave venue reads. Protocol symbols are read via scaledBalanceOf.
	WalletSymbols   []string
	ProtocolSymbols []string
	// Decimals maps symbol to its token decimals; absent symbols use 18.
	Decimals map[string]int
	// ReserveAddresses maps reserve asset symbol to the underlying asset
	// contract the Aave pool is queried with.
	ReserveAddresses map[string]string
	// AavePool and AaveOracle are the protocol contract addresses.
	AavePool   string
	AaveOracle string
	// OracleBaseDecimals scales oracle answers (Aave v3 uses 8).
	OracleBaseDecimals int
}

// Client reads balances and protocol data over one RPC connection. It
// implements domain.BalanceFetcher for the wallet and protocol venues and
// marketdata.ProtocolSource for the live provider.
type Client struct {
	cfg ClientConfig
	eth *ethclient.Client
}

// Dial connects to the configured RPC endpoint.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}
	return &Client{cfg: cfg, eth: eth}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() { c.eth.Close() }

// Venue implements domain.BalanceFetcher for the wallet venue.
func (c *Client) Venue() domain.Venue { return c.cfg.WalletVenue }

// Categories implements domain.BalanceFetcher.
func (c *Client) Categories() []domain.VenueCategory {
	return []domain.VenueCategory{domain.CategoryWallet, domain.CategoryProtocol}
}

// FetchBalances reads wallet ERC-20 balances and Aave scaled balances.
// Protocol balances stay scaled: the exposure monitor applies the index.
func (c *Client) FetchBalances(ctx context.Context, _ time.Time) ([]domain.VenueBalance, error) {
	wallet := common.HexToAddress(c.cfg.WalletAddress)
	var balances []domain.VenueBalance

	for _, sym := range c.cfg.WalletSymbols {
		amt, err := c.tokenBalance(ctx, sym, selBalanceOf, wallet)
		if err != nil {
			return nil, err
		}
		balances = append(balances, domain.VenueBalance{
			Venue:    c.cfg.WalletVenue,
			Category: domain.CategoryWallet,
			Asset:    sym,
			Amount:   amt,
		})
	}

	for _, sym := range c.cfg.ProtocolSymbols {
		amt, err := c.tokenBalance(ctx, sym, selScaledBalanceOf, wallet)
		if err != nil {
			return nil, err
		}
		balances = append(balances, domain.VenueBalance{
			Venue:    c.cfg.ProtocolVenue,
			Category: domain.CategoryProtocol,
			Asset:    sym,
			Amount:   amt,
		})
	}

	return balances, nil
}

// ReserveIndexes reads the normalized income and variable debt per reserve.
func (c *Client) ReserveIndexes(ctx context.Context, assets []string) (liquidity, borrow map[string]float64, err error) {
	pool := common.HexToAddress(c.cfg.AavePool)
	liquidity = make(map[string]float64, len(assets))
	borrow = make(map[string]float64, len(assets))

	for _, asset := range assets {
		reserve, ok := c.cfg.ReserveAddresses[asset]
		if !ok {
			return nil, nil, fmt.Errorf("chain: no reserve address for %s", asset)
		}
		addr := common.HexToAddress(reserve)

		income, err := c.callUint(ctx, pool, selNormalizedIncome, addr)
		if err != nil {
			return nil, nil, fmt.Errorf("chain: normalized income %s: %w", asset, err)
		}
		debt, err := c.callUint(ctx, pool, selNormalizedDebt, addr)
		if err != nil {
			return nil, nil, fmt.Errorf("chain: normalized debt %s: %w", asset, err)
		}

		liquidity[asset] = rayToFloat(income)
		borrow[asset] = rayToFloat(debt)
	}
	return liquidity, borrow, nil
}

// OraclePrices reads the Aave oracle price per asset, scaled to share-class
// units.
func (c *Client) OraclePrices(ctx context.Context, assets []string) (map[string]float64, error) {
	oracle := common.HexToAddress(c.cfg.AaveOracle)
	scale := math.Pow10(c.cfg.OracleBaseDecimals)
	out := make(map[string]float64, len(assets))

	for _, asset := range assets {
		reserve, ok := c.cfg.ReserveAddresses[asset]
		if !ok {
			continue // not an on-chain asset; zero-filled upstream
		}
		raw, err := c.callUint(ctx, oracle, selGetAssetPrice, common.HexToAddress(reserve))
		if err != nil {
			return nil, fmt.Errorf("chain: oracle price %s: %w", asset, err)
		}
		f, _ := new(big.Float).SetInt(raw).Float64()
		out[asset] = f / scale
	}
	return out, nil
}

// RiskParams decodes the liquidation threshold and bonus from the Aave
// reserve configuration bitmask (bits 16-31 and 32-47, in basis points).
func (c *Client) RiskParams(ctx context.Context, asset string) (domain.RiskParams, error) {
	reserve, ok := c.cfg.ReserveAddresses[asset]
	if !ok {
		return domain.RiskParams{}, fmt.Errorf("chain: no reserve address for %s", asset)
	}
	pool := common.HexToAddress(c.cfg.AavePool)

	cfgWord, err := c.callUint(ctx, pool, selGetConfiguration, common.HexToAddress(reserve))
	if err != nil {
		return domain.RiskParams{}, fmt.Errorf("chain: configuration %s: %w", asset, err)
	}

	threshold := bitfield(cfgWord, 16, 16)
	bonusRaw := bitfield(cfgWord, 32, 16)

	params := domain.RiskParams{
		Available:            true,
		LiquidationThreshold: float64(threshold) / 10_000,
	}
	// The on-chain bonus is encoded as a premium over 100% (e.g. 10500 for
	// a 5% bonus); zero means the reserve cannot be liquidated.
	if bonusRaw > 10_000 {
		params.LiquidationBonus = float64(bonusRaw-10_000) / 10_000
	}
	return params, nil
}

// tokenBalance reads a token balance and scales it by the token decimals.
func (c *Client) tokenBalance(ctx context.Context, sym string, selector []byte, holder common.Address) (float64, error) {
	tokenAddr, ok := c.cfg.Tokens[sym]
	if !ok {
		return 0, fmt.Errorf("chain: no contract address for %s", sym)
	}

	raw, err := c.callUint(ctx, common.HexToAddress(tokenAddr), selector, holder)
	if err != nil {
		return 0, fmt.Errorf("chain: balance %s: %w", sym, err)
	}

	decimals := 18
	if d, ok := c.cfg.Decimals[sym]; ok {
		decimals = d
	}
	f, _ := new(big.Float).SetInt(raw).Float64()
	return f / math.Pow10(decimals), nil
}

// callUint performs one eth_call with an address argument and decodes a
// single uint256 result.
func (c *Client) callUint(ctx context.Context, to common.Address, selector []byte, arg common.Address) (*big.Int, error) {
	data := make([]byte, 0, 36)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(arg.Bytes(), 32)...)

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short eth_call result: %d bytes", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

func rayToFloat(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), ray).Float64()
	return f
}

// bitfield extracts width bits starting at offset from word.
func bitfield(word *big.Int, offset, width uint) uint64 {
	mask := new(big.Int).Lsh(big.NewInt(1), width)
	mask.Sub(mask, big.NewInt(1))
	v := new(big.Int).Rsh(word, offset)
	v.And(v, mask)
	return v.Uint64()
}
