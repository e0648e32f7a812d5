package batch

import "github.com/labstack/echo/v4"

func (ctl *Controller) Logs(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	entries, err := ctl.service(c).Logs(id)
	if err != nil {
		return lookupError(err)
	}

	return ok(c, entries)
}
