package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeSystem AccountScope = iota
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// System sub-types (per market)
	SubTypeSpotVault AccountSubType = iota
	SubTypeInsuranceVault

	// External boundary sub-types
	SubTypeExternalDeposits
	SubTypeExternalWithdrawals
)

// AssetID maps asset symbols to numeric IDs for performance
type AssetID uint16

const (
	AssetUSDC AssetID = 1
	AssetUSDT AssetID = 2
	AssetSOL  AssetID = 3
	AssetBTC  AssetID = 4
	AssetETH  AssetID = 5
)

var (
	assetToID = map[string]AssetID{
		"USDC": AssetUSDC,
		"USDT": AssetUSDT,
		"SOL":  AssetSOL,
		"BTC":  AssetBTC,
		"ETH":  AssetETH,
	}
	idToAsset = map[AssetID]string{
		AssetUSDC: "USDC",
		AssetUSDT: "USDT",
		AssetSOL:  "SOL",
		AssetBTC:  "BTC",
		AssetETH:  "ETH",
	}
)

func GetAssetID(asset string) (AssetID, bool) {
	id, ok := assetToID[asset]
	return id, ok
}

func GetAssetName(id AssetID) (string, bool) {
	name, ok := idToAsset[id]
	return name, ok
}

// AccountKey is the in-memory key for balance tracking (21 bytes, cache-friendly)
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // market index for system vaults, zero for external
	SubType  AccountSubType
	AssetID  AssetID
}

// NewSpotVaultKey keys a market's operating vault: the token pool backing
// the deposit/borrow ledger.
func NewSpotVaultKey(marketIndex uint16, assetID AssetID) AccountKey {
	return newMarketAccountKey(marketIndex, SubTypeSpotVault, assetID)
}

// NewInsuranceVaultKey keys a market's insurance vault: the token pool
// backing the share ledger.
func NewInsuranceVaultKey(marketIndex uint16, assetID AssetID) AccountKey {
	return newMarketAccountKey(marketIndex, SubTypeInsuranceVault, assetID)
}

func newMarketAccountKey(marketIndex uint16, subType AccountSubType, assetID AssetID) AccountKey {
	var entityID [16]byte
	entityID[0] = byte(marketIndex)
	entityID[1] = byte(marketIndex >> 8)
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		SubType:  subType,
		AssetID:  assetID,
	}
}

// NewExternalAccountKey creates a key for external boundary accounts
func NewExternalAccountKey(subType AccountSubType, assetID AssetID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		AssetID: assetID,
	}
}

// MarketIndex extracts the market index from a system account key.
func (k AccountKey) MarketIndex() uint16 {
	return uint16(k.EntityID[0]) | uint16(k.EntityID[1])<<8
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	assetName, _ := GetAssetName(k.AssetID)

	switch k.Scope {
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%d:%s", k.subTypeName(), k.MarketIndex(), assetName)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), assetName)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath. Snapshot restore uses it
// to rebuild typed keys from the stored string form.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.Split(path, ":")
	switch {
	case len(parts) == 4 && parts[0] == "system":
		subType, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		marketIndex, err := strconv.ParseUint(parts[2], 10, 16)
		if err != nil {
			return AccountKey{}, fmt.Errorf("invalid market index in account path %q: %w", path, err)
		}
		assetID, ok := GetAssetID(parts[3])
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset in account path %q", path)
		}
		return newMarketAccountKey(uint16(marketIndex), subType, assetID), nil

	case len(parts) == 3 && parts[0] == "external":
		subType, err := parseSubType(parts[1])
		if err != nil {
			return AccountKey{}, err
		}
		assetID, ok := GetAssetID(parts[2])
		if !ok {
			return AccountKey{}, fmt.Errorf("unknown asset in account path %q", path)
		}
		return NewExternalAccountKey(subType, assetID), nil
	}
	return AccountKey{}, fmt.Errorf("malformed account path %q", path)
}

func parseSubType(name string) (AccountSubType, error) {
	switch name {
	case "spot_vault":
		return SubTypeSpotVault, nil
	case "insurance_vault":
		return SubTypeInsuranceVault, nil
	case "deposits":
		return SubTypeExternalDeposits, nil
	case "withdrawals":
		return SubTypeExternalWithdrawals, nil
	}
	return 0, fmt.Errorf("unknown account sub-type %q", name)
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypeSpotVault:
		return "spot_vault"
	case SubTypeInsuranceVault:
		return "insurance_vault"
	case SubTypeExternalDeposits:
		return "deposits"
	case SubTypeExternalWithdrawals:
		return "withdrawals"
	default:
		return "unknown"
	}
}
