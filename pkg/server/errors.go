package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"

	"storyweaver/pkg/schema"
	"storyweaver/pkg/store"
	"storyweaver/pkg/storylogic"
	"storyweaver/pkg/utils"
)

// fail writes err as an error envelope. Known errors get their own status;
// anything else gets fallback, which is 502 for calls that went through a
// model and 500 otherwise.
func fail(c echo.Context, fallback int, msg string, err error) error {
	status := fallback
	var ve *schema.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("invalid request", ve.Error()))
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, storylogic.ErrRecognizerUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		log.Error(msg, "path", c.Path(), "error", err)
	}
	return c.JSON(status, utils.ErrJSON(msg, err.Error()))
}
