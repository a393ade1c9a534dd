package nodeapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/beka-birhanu/vinom-mazesync/service"
	"github.com/beka-birhanu/vinom-mazesync/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Participant is the node surface the controller drives.
type Participant interface {
	Layout() (*service.Layout, bool)
	MarkReady(ctx context.Context) error
	RequestPickup(ctx context.Context, item uuid.UUID) error
	RequestColor(ctx context.Context) error
	RequestFinish(ctx context.Context) error
	Snapshot(ctx context.Context) (service.Snapshot, error)
}

// NodeController exposes a participant node over HTTP.
type NodeController struct {
	node Participant
}

// NewNodeController initializes a NodeController.
func NewNodeController(node Participant) (*NodeController, error) {
	if node == nil {
		return nil, errors.New("nil participant")
	}
	return &NodeController{node: node}, nil
}

// RegisterPublic registers public routes.
func (nc *NodeController) RegisterPublic(route *gin.RouterGroup) {}

// RegisterProtected registers protected routes.
func (nc *NodeController) RegisterProtected(route *gin.RouterGroup) {
	route.GET("/maze", nc.maze)
	route.GET("/state", nc.state)
	route.POST("/ready", nc.ready)
	route.POST("/items/:ID/pickup", nc.pickup)
	route.POST("/color", nc.color)
	route.POST("/finish", nc.finish)
}

func (nc *NodeController) maze(ctx *gin.Context) {
	layout, ok := nc.node.Layout()
	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "maze not built yet"})
		return
	}
	ctx.JSON(http.StatusOK, newMazeResponse(layout))
}

func (nc *NodeController) state(ctx *gin.Context) {
	snap, err := nc.node.Snapshot(ctx)
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, newStateResponse(snap))
}

func (nc *NodeController) ready(ctx *gin.Context) {
	if err := nc.node.MarkReady(ctx); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (nc *NodeController) pickup(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Params.ByName("ID"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	if err := nc.node.RequestPickup(ctx, id); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusAccepted)
}

func (nc *NodeController) color(ctx *gin.Context) {
	if err := nc.node.RequestColor(ctx); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusAccepted)
}

func (nc *NodeController) finish(ctx *gin.Context) {
	if err := nc.node.RequestFinish(ctx); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.Status(http.StatusAccepted)
}

func respondError(ctx *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotBuilt), errors.Is(err, service.ErrAlreadyHolding):
		status = http.StatusConflict
	case errors.Is(err, session.ErrNoAuthority):
		status = http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNotMember):
		status = http.StatusGone
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}
