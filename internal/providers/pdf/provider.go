package pdf

import (
	"context"
	"io"
)

// Provider renders a commission statement for one user and period.
type Provider interface {
	GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error)
}

var _ Provider = (*MarotoProvider)(nil)
