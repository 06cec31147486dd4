// Package operation defines the correlation id shared by cross-domain
// signals. A wallet reservation does not know which workflow asked for it;
// the id it carries says so.
package operation

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind is the discriminant of an ID.
type Kind int

const (
	kindUnset Kind = iota
	Purchase
	Sale
	Withdrawal
	Replenishment
)

var kindNames = map[Kind]string{
	Purchase:      "purchase",
	Sale:          "sale",
	Withdrawal:    "withdrawal",
	Replenishment: "replenishment",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unset"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return kindUnset, fmt.Errorf("unknown operation kind %q", s)
}

// ErrInvalidID is returned for ids without a kind or value.
var ErrInvalidID = errors.New("invalid operation id")

// ID identifies the saga instance that owns a cross-domain signal. The zero
// ID is invalid.
type ID struct {
	kind  Kind
	value string
}

// PurchaseID returns a purchase operation id.
func PurchaseID(v string) ID { return ID{kind: Purchase, value: v} }

// SaleID returns a sale operation id.
func SaleID(v string) ID { return ID{kind: Sale, value: v} }

// WithdrawalID returns a withdrawal operation id.
func WithdrawalID(v string) ID { return ID{kind: Withdrawal, value: v} }

// ReplenishmentID returns a replenishment operation id.
func ReplenishmentID(v string) ID { return ID{kind: Replenishment, value: v} }

// New returns an id of kind k with a random value.
func New(k Kind) ID {
	return ID{kind: k, value: uuid.NewString()}
}

// Kind returns the discriminant.
func (id ID) Kind() Kind { return id.kind }

// Value returns the instance id.
func (id ID) Value() string { return id.value }

// Is reports whether the id is of kind k, returning its value if so.
func (id ID) Is(k Kind) (string, bool) {
	if id.kind != k || id.value == "" {
		return "", false
	}
	return id.value, true
}

// Validate rejects the zero id and ids without a value.
func (id ID) Validate() error {
	if _, ok := kindNames[id.kind]; !ok {
		return fmt.Errorf("%w: kind is not set", ErrInvalidID)
	}
	if id.value == "" {
		return fmt.Errorf("%w: %s id has no value", ErrInvalidID, id.kind)
	}
	return nil
}

// String formats the id as "kind:value".
func (id ID) String() string {
	return id.kind.String() + ":" + id.value
}

type wireID struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// MarshalJSON encodes the id as {"kind":..., "value":...}.
func (id ID) MarshalJSON() ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(wireID{Kind: id.kind.String(), Value: id.value})
}

// UnmarshalJSON decodes an id written by MarshalJSON.
func (id *ID) UnmarshalJSON(data []byte) error {
	var w wireID
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	k, err := ParseKind(w.Kind)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	decoded := ID{kind: k, value: w.Value}
	if err := decoded.Validate(); err != nil {
		return err
	}
	*id = decoded
	return nil
}
