package registration

import "context"

var _ Api = (*FileStore)(nil)

type Api interface {
	Add(ctx context.Context, registrant *Registrant) (*Registrant, error)
	List(ctx context.Context, tipo string) ([]Registrant, error)
	SetEstado(ctx context.Context, tipo, id, estado string) (*Registrant, error)
	Delete(ctx context.Context, tipo, id string) error
	Counts(ctx context.Context) (tatuadores, jurados int, err error)
}

// MessageCounter provides the contact message total for the dashboard stats.
type MessageCounter interface {
	Count(ctx context.Context) (int, error)
}
