package content

import (
	"context"
	"errors"

	"github.com/DoyleJ11/nofus-backend/internal/engine"
)

var ErrNoArticles = errors.New("content: provider returned no articles")

// Provider supplies research articles. Implementations must be safe for
// concurrent use; the host session calls Articles from background tasks.
type Provider interface {
	Articles(ctx context.Context, n int) ([]engine.Article, error)
}
