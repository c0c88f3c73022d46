package hydrate

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestContext is the scope of one logical unit of work.
//
// It owns the request's EntityCache and the query engine bound to the
// request's transaction. A RequestContext is discarded when the request ends;
// records cached in it are never shared with another request.
type RequestContext struct {
	id     uuid.UUID
	engine QueryEngine
	cache  *EntityCache
	logger *zap.Logger
}

// NewRequestContext creates a request context with an empty entity cache.
// A nil logger disables logging.
func NewRequestContext(id uuid.UUID, engine QueryEngine, logger *zap.Logger) *RequestContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("request_id", id.String()))
	return &RequestContext{
		id:     id,
		engine: engine,
		cache:  NewEntityCache(logger),
		logger: logger,
	}
}

// ID returns the request id.
func (rc *RequestContext) ID() uuid.UUID { return rc.id }

// Engine returns the query engine of the request.
func (rc *RequestContext) Engine() QueryEngine { return rc.engine }

// Cache returns the entity cache of the request.
func (rc *RequestContext) Cache() *EntityCache { return rc.cache }

// Logger returns the request-scoped logger.
func (rc *RequestContext) Logger() *zap.Logger { return rc.logger }
