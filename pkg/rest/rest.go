// Package rest exposes multicloud stack CRUD over HTTP with gin, matching
// the wire format pkg/store/remotestore expects from a store server.
package rest

import (
	"errors"
	"net/http"

	"github.com/acticloud/heatspreader/pkg/log"
	"github.com/acticloud/heatspreader/pkg/store"
	"github.com/acticloud/heatspreader/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDHeader is the header a caller may set to correlate a request
// across this server and any upstream proxy; if absent one is minted.
const requestIDHeader = "X-Request-Id"

type wireStack struct {
	StackName      string             `json:"stack_name"`
	Count          int                `json:"count"`
	CountParameter string             `json:"count_parameter"`
	Weights        map[string]float64 `json:"weights"`
	CloudOrder     []string           `json:"cloud_order,omitempty"`
}

func toWire(s *types.MulticloudStack) wireStack {
	return wireStack{
		StackName:      s.StackName,
		Count:          s.Count,
		CountParameter: s.CountParameter,
		Weights:        s.Weights,
		CloudOrder:     s.Clouds(),
	}
}

func fromWire(w wireStack) *types.MulticloudStack {
	return &types.MulticloudStack{
		StackName:      w.StackName,
		Count:          w.Count,
		CountParameter: w.CountParameter,
		Weights:        w.Weights,
		CloudOrder:     w.CloudOrder,
	}
}

// Server wraps the gin engine and the backing WriteStore.
type Server struct {
	engine *gin.Engine
	store  store.WriteStore
}

// New builds a Server routing requests to backingStore.
func New(backingStore store.WriteStore) *Server {
	engine := gin.New()
	engine.Use(requestID(), requestLogger(), gin.Recovery())

	s := &Server{engine: engine, store: backingStore}

	engine.GET("/multicloudstack", s.list)
	engine.GET("/multicloudstack/:stack_name", s.get)
	engine.PUT("/multicloudstack/:stack_name", s.put)
	engine.DELETE("/multicloudstack/:stack_name", s.delete)

	return s
}

// Handler returns the underlying http.Handler, for use with an http.Server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// requestID assigns every request a correlation ID, reusing one a caller
// already supplied via requestIDHeader rather than minting a second one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	_log := log.WithComponent("rest")
	return func(c *gin.Context) {
		c.Next()
		_log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("request_id", c.GetString("request_id")).
			Msg("server_request")
	}
}

func (s *Server) list(c *gin.Context) {
	stacks, err := s.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	wire := make([]wireStack, 0, len(stacks))
	for _, st := range stacks {
		wire = append(wire, toWire(st))
	}
	c.JSON(http.StatusOK, gin.H{"stacks": wire})
}

func (s *Server) get(c *gin.Context) {
	stackName := c.Param("stack_name")

	st, err := s.store.Get(c.Request.Context(), stackName)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toWire(st))
}

// put is an upsert: it creates the stack if it doesn't exist yet, or
// updates it in place if it does, mirroring remotestore's expectations.
func (s *Server) put(c *gin.Context) {
	stackName := c.Param("stack_name")

	var wire wireStack
	if err := c.ShouldBindJSON(&wire); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if wire.StackName != "" && wire.StackName != stackName {
		c.JSON(http.StatusConflict, gin.H{
			"error": "stack name in URI and body are mismatching and updating the stack name is not currently supported",
		})
		return
	}
	wire.StackName = stackName

	st := fromWire(wire)
	ctx := c.Request.Context()

	if _, err := s.store.Get(ctx, stackName); errors.Is(err, store.ErrNotFound) {
		if err := s.store.Create(ctx, st); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
	} else if err := s.store.Update(ctx, st); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, toWire(st))
}

func (s *Server) delete(c *gin.Context) {
	stackName := c.Param("stack_name")

	err := s.store.Delete(c.Request.Context(), stackName)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}
