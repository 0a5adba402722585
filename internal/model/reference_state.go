package model

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// ReferenceState is the mutable default-detection state of one collateral.
type ReferenceState struct {
	PrevReferencePrice *big.Int
	WhenDefault        uint64
}

type referenceStateJSON struct {
	PrevReferencePrice string  `json:"prev_reference_price"`
	WhenDefault        *uint64 `json:"when_default"`
}

// MarshalJSON encodes the price as a base-10 string and Never as null.
func (rs ReferenceState) MarshalJSON() ([]byte, error) {
	out := referenceStateJSON{PrevReferencePrice: "0"}
	if rs.PrevReferencePrice != nil {
		out.PrevReferencePrice = rs.PrevReferencePrice.String()
	}
	if rs.WhenDefault != Never {
		ts := rs.WhenDefault
		out.WhenDefault = &ts
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a ReferenceState from JSON.
func (rs *ReferenceState) UnmarshalJSON(data []byte) error {
	var in referenceStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	price, ok := new(big.Int).SetString(in.PrevReferencePrice, 10)
	if !ok {
		return fmt.Errorf("invalid prev_reference_price: %s", in.PrevReferencePrice)
	}
	rs.PrevReferencePrice = price
	rs.WhenDefault = Never
	if in.WhenDefault != nil {
		rs.WhenDefault = *in.WhenDefault
	}
	return nil
}
