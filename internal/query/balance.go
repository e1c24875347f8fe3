package query

import (
	"context"
	"database/sql"
	"fmt"

	"SpotVault/internal/ledger"
)

// GetVaultBalances returns the spot and insurance vault token balances for a
// market, read from the balance projection.
func (qs *QueryService) GetVaultBalances(
	ctx context.Context,
	marketIndex uint16,
	asset string,
) (*VaultBalanceResponse, error) {
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", asset)
	}

	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	spotPath := ledger.NewSpotVaultKey(marketIndex, assetID).AccountPath()
	spotVault, err := qs.getProjectedBalance(ctx, spotPath)
	if err != nil {
		return nil, err
	}

	insurancePath := ledger.NewInsuranceVaultKey(marketIndex, assetID).AccountPath()
	insuranceVault, err := qs.getProjectedBalance(ctx, insurancePath)
	if err != nil {
		return nil, err
	}

	return &VaultBalanceResponse{
		MarketIndex:           marketIndex,
		Asset:                 asset,
		SpotVaultBalance:      spotVault,
		InsuranceVaultBalance: insuranceVault,
		AsOfSequence:          asOfSeq,
	}, nil
}

func (qs *QueryService) getProjectedBalance(ctx context.Context, accountPath string) (int64, error) {
	var balance int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, accountPath).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return balance, err
}
