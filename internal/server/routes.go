package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/meters", s.MetersHandler)
	e.GET("/meters/:serial", s.MeterHandler)
	e.GET("/meters/:serial/history", s.MeterHistoryHandler)
	e.GET("/ws", s.WebSocketHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, requestTimeout).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) MetersHandler(c echo.Context) error {
	readings, err := s.meterReadings()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	out := make([]domain.MeterReadingJSON, 0, len(readings))
	for _, r := range readings {
		out = append(out, domain.NewMeterReadingJSON(r))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) MeterHandler(c echo.Context) error {
	serial, err := parseSerial(c.Param("serial"))
	if err != nil {
		return err
	}
	readings, err := s.meterReadings()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	for _, r := range readings {
		if r.Serial == serial {
			return c.JSON(http.StatusOK, domain.NewMeterReadingJSON(r))
		}
	}
	return echo.NewHTTPError(http.StatusNotFound, "unknown meter")
}

func (s *Server) MeterHistoryHandler(c echo.Context) error {
	serial, err := parseSerial(c.Param("serial"))
	if err != nil {
		return err
	}
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive number")
		}
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetReadingHistoryRequest{
		Serial: serial,
		Limit:  limit,
	}, requestTimeout).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetReadingHistoryResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if response.HasResponseError() {
		if errors.Is(response.GetResponseError(), domain.ErrHistoryDisabled) {
			return echo.NewHTTPError(http.StatusNotFound, response.GetResponseError().Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	if response.Records == nil {
		response.Records = []domain.HistoryRecord{}
	}
	return c.JSON(http.StatusOK, response.Records)
}

func (s *Server) meterReadings() ([]domain.MeterReading, error) {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMeterReadingsRequest{}, requestTimeout).Result()
	if err != nil {
		return nil, err
	}
	response, ok := res.(domain.GetMeterReadingsResponse)
	if !ok {
		return nil, errors.New("unexpected response")
	}
	if response.HasResponseError() {
		return nil, response.GetResponseError()
	}
	return response.Readings, nil
}

func parseSerial(param string) (uint32, error) {
	serial, err := strconv.ParseUint(param, 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "serial must be an unsigned 32 bit number")
	}
	return uint32(serial), nil
}
