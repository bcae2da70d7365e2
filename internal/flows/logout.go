package flows

import (
	"context"
)

// SignOutStore is the session store surface used by sign-out.
type SignOutStore interface {
	Clear(ctx context.Context) error
}

// SubjectIndex removes every persisted session of one subject.
type SubjectIndex interface {
	DeleteAllForSubject(ctx context.Context, subject string) (int, error)
}

// SignOutResult reports how many persisted sessions a sign-out removed
// besides the current one.
type SignOutResult struct {
	Err     error
	Removed int
}

// RunSignOut clears store.
func RunSignOut(ctx context.Context, store SignOutStore) error {
	return store.Clear(ctx)
}

// RunSignOutEverywhere clears store and then every persisted session of
// subject. The local clear happens even when the index is unavailable.
func RunSignOutEverywhere(ctx context.Context, store SignOutStore, subject string, index SubjectIndex) SignOutResult {
	if err := store.Clear(ctx); err != nil {
		return SignOutResult{Err: err}
	}
	if index == nil || subject == "" {
		return SignOutResult{}
	}
	n, err := index.DeleteAllForSubject(ctx, subject)
	return SignOutResult{Err: err, Removed: n}
}
