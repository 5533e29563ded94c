package vault

import (
	"encoding/binary"
	"math/big"
)

// CanonicalBytes serializes the vault's hash-relevant state in a fixed
// field order. Two engines that applied the same command sequence produce
// identical bytes, which is what anchors the state-hash chain.
func (v *Vault) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)

	buf = append(buf, v.ID[:]...)
	buf = append(buf, v.ProductID[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.Status))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(v.Epoch.SettlementStatus))

	buf = appendBig(buf, v.TotalAssets)
	buf = appendBig(buf, v.TotalSupply)

	buf = append(buf, v.Epoch.AuctionWinner[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, v.Epoch.ReceiptTokenID)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Epoch.AprBps))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Epoch.TradeStartTime))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Epoch.TradeExpiryTime))

	buf = appendBig(buf, v.Epoch.InitialSpotPrice)
	buf = appendBig(buf, v.Epoch.StrikePrice)
	buf = appendBig(buf, v.Epoch.FinalSpotPrice)
	buf = appendBig(buf, v.Epoch.YieldAmount)

	if v.Epoch.PayoffInDepositAsset {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	if v.InDispute {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	if v.WithdrawalQueue != nil {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.WithdrawalQueue.ProcessedIndex))
		buf = appendBig(buf, v.WithdrawalQueue.TotalShares)
	}

	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Version))
	return buf
}

// appendBig writes a length-prefixed signed big.Int encoding.
func appendBig(buf []byte, value *big.Int) []byte {
	if value == nil {
		return binary.LittleEndian.AppendUint32(buf, 0)
	}
	b := value.Bytes()
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)+1))
	if value.Sign() < 0 {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return append(buf, b...)
}
