package models

// ProviderReceipt is returned by a settlement provider's pay operation.
type ProviderReceipt struct {
	TxID       string `json:"tx_id"`
	Chain      string `json:"chain"`
	ConfirmSig string `json:"confirm_sig"`
	BlockRef   string `json:"block_ref,omitempty"`
}

// ProviderVerification is returned by a settlement provider's verify
// operation.
type ProviderVerification struct {
	Verified      bool   `json:"verified"`
	Confirmations int64  `json:"confirmations"`
	Reason        string `json:"reason,omitempty"`
}
