package bootstrap

import (
	"context"
	"errors"

	"github.com/kirillkom/dossier-summarizer/internal/core/domain"
	"github.com/kirillkom/dossier-summarizer/internal/core/ports"
)

// eventFanout delivers each document event to every configured sink. An
// empty fanout drops events.
type eventFanout []ports.EventPublisher

func (f eventFanout) PublishDocumentEvent(ctx context.Context, event domain.DocumentEvent) error {
	var errs []error
	for _, publisher := range f {
		if err := publisher.PublishDocumentEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
