package handler

import (
	"log"

	"github.com/gin-gonic/gin"
	problem "github.com/onebottle/onebottle-api/pkg/bottles/helpers/problem"
	"github.com/onebottle/onebottle-api/pkg/bottles/models"
	"github.com/onebottle/onebottle-api/pkg/bottles/services"
)

type AdminController struct {
	Service *services.MaintenanceService
}

func NewAdminController(s *services.MaintenanceService) *AdminController {
	return &AdminController{Service: s}
}

func (c *AdminController) Stats(ctx *gin.Context) (*models.Stats, error) {
	stats, err := c.Service.Stats(ctx.Request.Context())
	if err != nil {
		log.Printf("[admin] stats failed: %v", err)
		return nil, problem.NewInternalServerError("Server error")
	}
	return stats, nil
}

// Sweep runs the orphan sweep inline and reports how many blobs went away.
func (c *AdminController) Sweep(ctx *gin.Context) (*models.SweepResponse, error) {
	n, err := c.Service.SweepOrphans(ctx.Request.Context())
	if err != nil {
		log.Printf("[admin] sweep failed after %d deletes: %v", n, err)
		return nil, problem.NewInternalServerError("Sweep failed")
	}
	return &models.SweepResponse{Deleted: n}, nil
}
