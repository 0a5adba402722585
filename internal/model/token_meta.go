package model

// TokenMeta captures ERC20 metadata for a basket position.
type TokenMeta struct {
	Index    int    `json:"index"`
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol,omitempty"`
	Name     string `json:"name,omitempty"`
}
