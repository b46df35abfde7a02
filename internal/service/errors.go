package service

import (
	"context"
	"errors"

	"github.com/Sumatoshi-tech/codemerge/internal/observability"
	"github.com/Sumatoshi-tech/codemerge/pkg/alg/lcs"
	"github.com/Sumatoshi-tech/codemerge/pkg/lines"
	"github.com/Sumatoshi-tech/codemerge/pkg/mergetree"
	"github.com/Sumatoshi-tech/codemerge/pkg/persist"
)

// Classify maps err to the error.type and error.source recorded on spans and
// used by the transports to pick a status.
func Classify(err error) (errType, source string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.ErrTypeCanceled, observability.ErrSourceClient
	case errors.Is(err, lines.ErrTooLarge), errors.Is(err, lcs.ErrTooLarge):
		return observability.ErrTypeTooLarge, observability.ErrSourceClient
	case errors.Is(err, mergetree.ErrUnresolvedConflict):
		return observability.ErrTypeConflict, observability.ErrSourceClient
	case errors.Is(err, lines.ErrBinary),
		errors.Is(err, mergetree.ErrInvalidSnapshot),
		errors.Is(err, mergetree.ErrInvalidScript),
		errors.Is(err, mergetree.ErrNotConflict),
		errors.Is(err, mergetree.ErrUnknownNode),
		errors.Is(err, persist.ErrSchema),
		errors.Is(err, persist.ErrUnknownFormat):
		return observability.ErrTypeValidation, observability.ErrSourceClient
	default:
		return observability.ErrTypeInternal, observability.ErrSourceInternal
	}
}
