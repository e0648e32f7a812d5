package batch

import (
	"strconv"

	bsvc "github.com/caesium-cloud/batch/api/rest/service/batch"
	"github.com/labstack/echo/v4"
)

func (ctl *Controller) List(c echo.Context) error {
	req, err := parseListRequest(c)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	batches, err := ctl.service(c).List(req)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return ok(c, batches)
}

func parseListRequest(c echo.Context) (req *bsvc.ListRequest, err error) {
	req = &bsvc.ListRequest{}

	if limit := c.QueryParam("limit"); limit != "" {
		if req.Limit, err = strconv.ParseUint(limit, 10, 64); err != nil {
			return nil, err
		}
	}

	if running := c.QueryParam("running"); running != "" {
		value, err := strconv.ParseBool(running)
		if err != nil {
			return nil, err
		}
		req.Running = &value
	}

	if c.QueryParams().Has("name") {
		name := c.QueryParam("name")
		req.Name = &name
	}

	return
}
