package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type entryKey struct{}

// NewContext returns a copy of ctx carrying entry, normally an entry with the
// request id and remote address already attached.
func NewContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, entryKey{}, entry)
}

// FromContext returns the entry stored by NewContext, or a bare entry of
// logger if there is none.
func FromContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	if entry, ok := ctx.Value(entryKey{}).(*logrus.Entry); ok && entry != nil {
		return entry
	}
	return logrus.NewEntry(OrNull(logger))
}
