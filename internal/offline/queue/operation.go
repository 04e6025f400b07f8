// Package queue is the durable outbox of mutations made while offline.
package queue

import (
	"encoding/json"
	"fmt"

	"stallpos/internal/core/entity"
)

// OpType is the verb of a queued operation.
type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// Operation is a pending mutation. The set of implementations is closed; a
// dispatcher switching over them is exhaustive.
type Operation interface {
	Type() OpType
	Table() entity.Kind
	isOperation()
}

// CreateItem registers a new item. Item.ID may be a temporary id.
type CreateItem struct {
	Item entity.Item `json:"item"`
}

// UpdateItem patches an existing item.
type UpdateItem struct {
	ItemID string           `json:"item_id"`
	Patch  entity.ItemPatch `json:"patch"`
}

// DeleteItem deactivates an item. History is never removed.
type DeleteItem struct {
	ItemID string `json:"item_id"`
}

type CreateSale struct {
	Sale entity.Sale `json:"sale"`
}

// UpdateSale records a new cumulative payment against a credit sale.
type UpdateSale struct {
	SaleID  string             `json:"sale_id"`
	Payment entity.SalePayment `json:"payment"`
}

type CreateDistribution struct {
	Distribution entity.StockDistribution `json:"distribution"`
}

type CreateAddition struct {
	Addition entity.StockAddition `json:"addition"`
}

type CreateWithdrawal struct {
	Withdrawal entity.Withdrawal `json:"withdrawal"`
}

func (CreateItem) Type() OpType         { return OpCreate }
func (UpdateItem) Type() OpType         { return OpUpdate }
func (DeleteItem) Type() OpType         { return OpDelete }
func (CreateSale) Type() OpType         { return OpCreate }
func (UpdateSale) Type() OpType         { return OpUpdate }
func (CreateDistribution) Type() OpType { return OpCreate }
func (CreateAddition) Type() OpType     { return OpCreate }
func (CreateWithdrawal) Type() OpType   { return OpCreate }

func (CreateItem) Table() entity.Kind         { return entity.KindItems }
func (UpdateItem) Table() entity.Kind         { return entity.KindItems }
func (DeleteItem) Table() entity.Kind         { return entity.KindItems }
func (CreateSale) Table() entity.Kind         { return entity.KindSales }
func (UpdateSale) Table() entity.Kind         { return entity.KindSales }
func (CreateDistribution) Table() entity.Kind { return entity.KindDistributions }
func (CreateAddition) Table() entity.Kind     { return entity.KindAdditions }
func (CreateWithdrawal) Table() entity.Kind   { return entity.KindWithdrawals }

func (CreateItem) isOperation()         {}
func (UpdateItem) isOperation()         {}
func (DeleteItem) isOperation()         {}
func (CreateSale) isOperation()         {}
func (UpdateSale) isOperation()         {}
func (CreateDistribution) isOperation() {}
func (CreateAddition) isOperation()     {}
func (CreateWithdrawal) isOperation()   {}

// Created returns the record a create operation introduces.
func Created(op Operation) (entity.Record, bool) {
	switch o := op.(type) {
	case CreateItem:
		return o.Item, true
	case CreateSale:
		return o.Sale, true
	case CreateDistribution:
		return o.Distribution, true
	case CreateAddition:
		return o.Addition, true
	case CreateWithdrawal:
		return o.Withdrawal, true
	}
	return nil, false
}

// References returns the ids of existing records op points at.
func References(op Operation) []string {
	switch o := op.(type) {
	case UpdateItem:
		return []string{o.ItemID}
	case DeleteItem:
		return []string{o.ItemID}
	case CreateSale:
		return []string{o.Sale.ItemID}
	case UpdateSale:
		return []string{o.SaleID}
	case CreateDistribution:
		return []string{o.Distribution.ItemID}
	case CreateAddition:
		return []string{o.Addition.ItemID}
	case CreateWithdrawal:
		return []string{o.Withdrawal.ItemID}
	}
	return nil
}

// Remap replaces every reference to oldID of the given kind with newID.
// It reports whether op changed.
func Remap(op Operation, kind entity.Kind, oldID, newID string) (Operation, bool) {
	swap := func(s *string) bool {
		if *s == oldID {
			*s = newID
			return true
		}
		return false
	}

	switch kind {
	case entity.KindItems:
		switch o := op.(type) {
		case UpdateItem:
			ok := swap(&o.ItemID)
			return o, ok
		case DeleteItem:
			ok := swap(&o.ItemID)
			return o, ok
		case CreateSale:
			ok := swap(&o.Sale.ItemID)
			return o, ok
		case CreateDistribution:
			ok := swap(&o.Distribution.ItemID)
			return o, ok
		case CreateAddition:
			ok := swap(&o.Addition.ItemID)
			return o, ok
		case CreateWithdrawal:
			ok := swap(&o.Withdrawal.ItemID)
			return o, ok
		}
	case entity.KindSales:
		if o, isUpdate := op.(UpdateSale); isUpdate {
			ok := swap(&o.SaleID)
			return o, ok
		}
	}
	return op, false
}

// Encode serialises an operation payload.
func Encode(op Operation) ([]byte, error) {
	b, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", op.Type(), op.Table(), err)
	}
	return b, nil
}

// Decode restores an operation from its (type, table, payload) triple.
func Decode(typ OpType, table entity.Kind, payload []byte) (Operation, error) {
	var (
		op  Operation
		err error
	)
	switch {
	case typ == OpCreate && table == entity.KindItems:
		var o CreateItem
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpUpdate && table == entity.KindItems:
		var o UpdateItem
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpDelete && table == entity.KindItems:
		var o DeleteItem
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpCreate && table == entity.KindSales:
		var o CreateSale
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpUpdate && table == entity.KindSales:
		var o UpdateSale
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpCreate && table == entity.KindDistributions:
		var o CreateDistribution
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpCreate && table == entity.KindAdditions:
		var o CreateAddition
		err = json.Unmarshal(payload, &o)
		op = o
	case typ == OpCreate && table == entity.KindWithdrawals:
		var o CreateWithdrawal
		err = json.Unmarshal(payload, &o)
		op = o
	default:
		return nil, fmt.Errorf("unsupported operation %s on %s", typ, table)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", typ, table, err)
	}
	return op, nil
}
