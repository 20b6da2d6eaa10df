package api

import (
	"context"
	"errors"
	"io/fs"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-overlay/internal/scores"
	"github.com/joeblew999/plat-overlay/internal/selection"
	"github.com/joeblew999/plat-overlay/internal/service"
	"github.com/joeblew999/plat-overlay/internal/session"
)

// toHTTP maps domain errors onto Huma status errors.
func toHTTP(err error) error {
	var unknown *selection.UnknownLayerError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &unknown):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrUnknownRegion):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, scores.ErrInvalidWindow),
		errors.Is(err, service.ErrInvalidSeverity),
		errors.Is(err, service.ErrEmptyDetails):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, fs.ErrNotExist):
		return huma.Error404NotFound("file not found")
	case errors.Is(err, service.ErrInvalidName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, session.ErrClosed), errors.Is(err, service.ErrNoDatabase):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout(err.Error())
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
