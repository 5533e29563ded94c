package query

import (
	"context"

	"github.com/google/uuid"
)

// ShareBalanceResponse represents an account's share position in a vault.
type ShareBalanceResponse struct {
	VaultID uuid.UUID `json:"vault_id"`
	Account uuid.UUID `json:"account"`

	// Balance is freely held; Escrowed is the vault-wide total awaiting
	// withdrawal processing and is informational only.
	Balance  string `json:"balance"`
	Escrowed string `json:"escrowed_total"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// GetShareBalance returns an account's share balance for a vault. Shares
// live in engine memory rather than in a projection table, so this read
// goes to the store directly.
func (s *Service) GetShareBalance(
	ctx context.Context,
	vaultID, account uuid.UUID,
) (*ShareBalanceResponse, error) {
	asOfSeq, err := s.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	return &ShareBalanceResponse{
		VaultID:      vaultID,
		Account:      account,
		Balance:      s.store.ShareBalance(vaultID, account).String(),
		Escrowed:     s.store.EscrowedShares(vaultID).String(),
		AsOfSequence: asOfSeq,
	}, nil
}
