package contact

import "context"

var _ Api = (*FileStore)(nil)
var _ Api = (*TestApi)(nil)

type Api interface {
	Add(ctx context.Context, message *Message) (*Message, error)
	List(ctx context.Context) ([]Message, error)
	Update(ctx context.Context, id string, patch Patch) (*Message, error)
	// Delete is idempotent: deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}
