// Package notify delivers health alerts and fleet digests to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"clientpulse/internal/logger"
)

// Notifier posts one plain-text message to a destination.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, text string) error
}

// Broadcast sends text to every notifier and joins the failures. One failing
// destination does not stop delivery to the others.
func Broadcast(ctx context.Context, notifiers []Notifier, text string) error {
	var errs []error
	for _, n := range notifiers {
		if err := n.Notify(ctx, text); err != nil {
			logger.Errorf("notify %s failed: %v", n.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
			continue
		}
		logger.Debugf("notify %s delivered chars=%d", n.Name(), len(text))
	}
	return errors.Join(errs...)
}
