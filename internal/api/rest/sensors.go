package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenInverterCore/internal/auth"
	"github.com/KevinKickass/OpenInverterCore/internal/inverter"
	"github.com/KevinKickass/OpenInverterCore/internal/sensors"
	"github.com/KevinKickass/OpenInverterCore/internal/storage"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

// GET /api/v1/sensors
func (s *Server) listSensors(c *gin.Context) {
	inv := s.lm.Inverter()
	registry := inv.Registry()

	all := registry.All()
	if model := c.Query("model"); model != "" {
		all = registry.ForModel(model)
	}
	writableOnly := c.Query("writable") == "true"

	response := make([]types.SensorInfo, 0, len(all))
	for _, sensor := range all {
		if writableOnly && !sensors.IsWritable(sensor) {
			continue
		}
		response = append(response, describe(registry, sensor))
	}

	c.JSON(http.StatusOK, gin.H{
		"sensors": response,
		"count":   len(response),
	})
}

// GET /api/v1/sensors/:id
func (s *Server) getSensor(c *gin.Context) {
	registry := s.lm.Inverter().Registry()
	sensor, err := registry.Lookup(c.Param("id"))
	if err != nil {
		s.sensorError(c, err)
		return
	}
	c.JSON(http.StatusOK, describe(registry, sensor))
}

// POST /api/v1/sensors/:id/read
func (s *Server) readSensor(c *gin.Context) {
	inv := s.lm.Inverter()
	id := c.Param("id")

	value, err := inv.ReadSensor(c.Request.Context(), id)
	if err != nil {
		s.sensorError(c, err)
		return
	}

	sensor, _ := inv.Registry().Lookup(id)
	c.JSON(http.StatusOK, describeValue(inv.Registry(), sensor, value))
}

// POST /api/v1/sensors/:id/write
func (s *Server) writeSensor(c *gin.Context) {
	var req types.WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeSensorInvalid, "Invalid request body", err.Error()))
		return
	}
	if req.Value == nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeSensorInvalid, "Missing value", nil))
		return
	}

	inv := s.lm.Inverter()
	id := c.Param("id")

	var old any
	if sensor, err := inv.Registry().Lookup(id); err == nil {
		old, _ = sensor.Last()
	}

	value, err := inv.WriteSensor(c.Request.Context(), id, req.Value)
	s.lm.Metrics().ObserveWrite(inv.ID(), id, err)
	s.audit(c, id, old, req.Value, err)

	if err != nil {
		s.sensorError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.WriteResponse{
		Sensor:    id,
		Value:     value,
		Formatted: sensors.Format(value),
	})
}

// GET /api/v1/sensors/:id/history?since=1h&limit=100
func (s *Server) sensorHistory(c *gin.Context) {
	store := s.lm.Store()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeStorageDisabled, "Database is disabled", nil))
		return
	}

	id := c.Param("id")
	if _, err := s.lm.Inverter().Registry().Lookup(id); err != nil {
		s.sensorError(c, err)
		return
	}

	since := 24 * time.Hour
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeSensorInvalid, "Invalid since duration", err.Error()))
			return
		}
		since = d
	}

	readings, err := store.ReadingHistory(c.Request.Context(), s.lm.Inverter().ID(), id, time.Now().Add(-since), queryLimit(c, 500))
	if err != nil {
		s.logger.Error("Failed to load history", zap.String("sensor", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeStorageFailed, "Failed to load history", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sensor":   id,
		"readings": readings,
		"count":    len(readings),
	})
}

// GET /api/v1/audit/writes
func (s *Server) listWriteAudits(c *gin.Context) {
	store := s.lm.Store()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeStorageDisabled, "Database is disabled", nil))
		return
	}

	audits, err := store.ListWriteAudits(c.Request.Context(), s.lm.Inverter().ID(), queryLimit(c, 100))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeStorageFailed, "Failed to list audits", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"audits": audits})
}

func (s *Server) audit(c *gin.Context, id string, old, value any, writeErr error) {
	store := s.lm.Store()
	if store == nil {
		return
	}

	a := storage.WriteAudit{
		ID:         uuid.New(),
		InverterID: s.lm.Inverter().ID(),
		SensorID:   id,
		OldValue:   sensors.Format(old),
		NewValue:   sensors.Format(value),
		Subject:    auth.Subject(c),
		Success:    writeErr == nil,
		CreatedAt:  time.Now(),
	}
	if writeErr != nil {
		a.Error = writeErr.Error()
	}
	if err := store.SaveWriteAudit(c.Request.Context(), a); err != nil {
		s.logger.Error("Failed to save write audit", zap.String("sensor", id), zap.Error(err))
	}
}

// sensorError maps model and transport errors onto HTTP responses.
func (s *Server) sensorError(c *gin.Context, err error) {
	var bounds *sensors.BoundsError
	switch {
	case errors.Is(err, sensors.ErrNotFound):
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.CodeSensorNotFound, "Sensor not found", err.Error()))
	case errors.Is(err, sensors.ErrReadOnly):
		c.JSON(http.StatusMethodNotAllowed, types.NewErrorResponse(types.CodeSensorReadOnly, "Sensor is read-only", err.Error()))
	case errors.As(err, &bounds):
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse(types.CodeSensorRejected, "Value out of bounds", types.BoundsDetails{
			Error: err.Error(),
			Side:  bounds.Side,
			Limit: bounds.Limit,
		}))
	case errors.Is(err, sensors.ErrOutOfBounds),
		errors.Is(err, sensors.ErrOutOfRange),
		errors.Is(err, sensors.ErrValueOutOfMask),
		errors.Is(err, sensors.ErrInvalidValue):
		c.JSON(http.StatusUnprocessableEntity, types.NewErrorResponse(types.CodeSensorRejected, "Invalid value", err.Error()))
	case errors.Is(err, inverter.ErrTransport), errors.Is(err, inverter.ErrTooManyReadErrors):
		s.logger.Warn("Inverter request failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse(types.CodeInverterUnreachable, "Inverter did not respond", err.Error()))
	default:
		s.logger.Error("Sensor request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse(types.CodeSensorInternal, "Internal error", err.Error()))
	}
}

func queryLimit(c *gin.Context, def int) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 || n > 10000 {
		return def
	}
	return n
}
