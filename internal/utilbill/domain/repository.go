package utilbill

import "context"

// Repository persists utility bills. Get returns nil, nil when not found.
type Repository interface {
	Get(ctx context.Context, id string) (*UtilBill, error)
	ListByAccount(ctx context.Context, accountID string) ([]*UtilBill, error)
	Save(ctx context.Context, bill *UtilBill) error
	Delete(ctx context.Context, id string) error
}

// RateClassCatalog resolves rate classes by name.
type RateClassCatalog interface {
	Lookup(name string) (*RateClass, error)
	List() []*RateClass
}
