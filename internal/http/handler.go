package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"radar-service/internal/config"
	"radar-service/internal/domain/radar"
	"radar-service/internal/service"
	"radar-service/internal/utils"
)

type Handler struct {
	radarService *service.RadarService
	config       *config.Config
	log          zerolog.Logger
}

func NewHandler(radarService *service.RadarService, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		radarService: radarService,
		config:       cfg,
		log:          log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/api/v1/radars")
	{
		public.GET("/search", h.searchDetections)
		public.GET("/plate/:plate", h.plateHistory)
		public.GET("/filter-options", h.getFilterOptions)
		public.GET("/highways/:highway/kms", h.getHighwayKms)
		public.GET("/locations", h.listLocations)
	}

	protected := r.Group("/api/v1/radars")
	protected.Use(authMiddleware)
	{
		protected.POST("/batch", h.submitBatch)
	}
}

func (h *Handler) searchDetections(c *gin.Context) {
	params := service.QueryParams{
		Plate:     strings.TrimSpace(c.Query("plate")),
		Plaza:     strings.TrimSpace(c.Query("plaza")),
		Highway:   strings.TrimSpace(c.Query("highway")),
		Km:        strings.TrimSpace(c.Query("km")),
		Direction: strings.TrimSpace(c.Query("direction")),
		Date:      strings.TrimSpace(c.Query("date")),
		TimeStart: strings.TrimSpace(c.Query("time_start")),
		TimeEnd:   strings.TrimSpace(c.Query("time_end")),
	}

	params.Size = 20
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			params.Size = parsed
		}
	}
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			params.Page = parsed
		}
	}

	page, err := h.radarService.QueryWithFilters(c.Request.Context(), params)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(page))
}

// plateHistory is the narrow plate-only search used by the lookup view.
func (h *Handler) plateHistory(c *gin.Context) {
	plate := utils.NormalizePlate(c.Param("plate"))
	if plate == "" {
		c.JSON(http.StatusBadRequest, errorResponse("plate is required"))
		return
	}

	params := service.QueryParams{
		Plate: plate,
		Size:  100,
	}
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			params.Page = parsed
		}
	}

	page, err := h.radarService.QueryWithFilters(c.Request.Context(), params)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(page))
}

func (h *Handler) getFilterOptions(c *gin.Context) {
	meta, err := h.radarService.GetFilterMetadata(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(meta))
}

func (h *Handler) getHighwayKms(c *gin.Context) {
	kms, err := h.radarService.GetKmsForHighway(c.Request.Context(), c.Param("highway"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(kms))
}

func (h *Handler) listLocations(c *gin.Context) {
	locations, err := h.radarService.ListAllLocations(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(locations))
}

func (h *Handler) submitBatch(c *gin.Context) {
	var detections []radar.Detection
	if err := c.ShouldBindJSON(&detections); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	saved, err := h.radarService.SubmitBatch(c.Request.Context(), detections)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"status": "ok",
		"saved":  len(saved),
	})
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
