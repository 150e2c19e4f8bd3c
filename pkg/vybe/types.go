package vybe

// TokenPrice is the normalized price record for one mint.
type TokenPrice struct {
	MintAddress string  `json:"mintAddress"`
	Symbol      string  `json:"symbol"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	UpdateTime  int64   `json:"updateTime"` // unix seconds
}

// Transfer is a single token or SOL movement touching a wallet.
type Transfer struct {
	Signature       string  `json:"signature"`
	BlockTime       int64   `json:"blockTime"` // unix seconds
	SenderAddress   string  `json:"senderAddress"`
	ReceiverAddress string  `json:"receiverAddress"`
	Mint            string  `json:"mintAddress"`
	Symbol          string  `json:"symbol"`
	Amount          float64 `json:"calculatedAmount"`
	ValueUSD        float64 `json:"valueUsd"`
}

// KnownAccount is a labeled account from the ranking endpoint.
type KnownAccount struct {
	OwnerAddress string  `json:"ownerAddress"`
	Name         string  `json:"name"`
	VolumeUSD    float64 `json:"volumeUsd"` // trailing trading volume
}
