package store

import "context"

// UserSink writes one user's completion flags through a StatusStore. It
// satisfies progress.Sink.
type UserSink struct {
	store  *StatusStore
	userID string
}

func (s *StatusStore) ForUser(userID string) *UserSink {
	return &UserSink{store: s, userID: userID}
}

func (u *UserSink) SaveStatus(ctx context.Context, tourName string, completed bool) error {
	return u.store.SetStatus(ctx, u.userID, tourName, completed)
}
