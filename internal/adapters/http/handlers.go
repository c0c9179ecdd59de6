package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/domain"
)

type handlers struct {
	nsps       *app.Namespaces
	defaultNsp string
}

type roomLister interface {
	Rooms() []domain.Room
}

func (h *handlers) namespace(c *gin.Context) (*app.Namespace, bool) {
	name := c.DefaultQuery("nsp", h.defaultNsp)
	ns, ok := h.nsps.Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown namespace"})
		return nil, false
	}
	return ns, true
}

func (h *handlers) namespaces(c *gin.Context) {
	c.JSON(http.StatusOK, h.nsps.List())
}

// clients lists live endpoints in any of the ?room= rooms, or all of them.
func (h *handlers) clients(c *gin.Context) {
	ns, ok := h.namespace(c)
	if !ok {
		return
	}
	rooms, err := domain.ParseRooms(c.QueryArray("room")...)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids, err := ns.Clients(c.Request.Context(), rooms...)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nsp": ns.Name(), "clients": ids})
}

// rooms lists the rooms of ?sid=, or every room of the namespace.
func (h *handlers) rooms(c *gin.Context) {
	ns, ok := h.namespace(c)
	if !ok {
		return
	}
	var rooms []domain.Room
	if sid := c.Query("sid"); sid != "" {
		rooms = ns.RoomsOf(domain.EndpointID(sid))
	} else if l, ok := ns.Adapter().(roomLister); ok {
		rooms = l.Rooms()
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	c.JSON(http.StatusOK, gin.H{"nsp": ns.Name(), "rooms": rooms})
}

func healthHandler(check func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
