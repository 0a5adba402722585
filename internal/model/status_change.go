package model

// StatusChange is emitted by refresh whenever the derived status moves.
type StatusChange struct {
	ID          string `json:"id"`
	Collateral  string `json:"collateral"`
	Old         Status `json:"old"`
	New         Status `json:"new"`
	WhenDefault uint64 `json:"when_default"`
	ObservedAt  uint64 `json:"observed_at"`
}
