package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandler renders every handler error as {"error": <string>}, per
// spec.md section 6 ("all errors returned as {error: <string>}").
func ErrorHandler(err error, c echo.Context) {
	status := http.StatusInternalServerError
	msg := err.Error()

	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if body, ok := he.Message.(map[string]interface{}); ok {
			if e, ok := body["error"].(string); ok {
				msg = e
			}
		} else if s, ok := he.Message.(string); ok {
			msg = s
		}
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == echo.HEAD {
		c.NoContent(status)
		return
	}
	c.JSON(status, map[string]interface{}{"error": msg})
}

// RegisterRoutes wires every spec section 6 endpoint onto e.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/jobs", h.ListJobs)
	e.GET("/job/:id", h.GetJob)
	e.GET("/extensions", h.ListExtensions)
	e.GET("/extension/*", h.GetExtension)

	e.POST("/preview", h.Preview)
	e.POST("/validate", h.Validate)
	e.POST("/export", h.Export)

	job := e.Group("/job/:id")
	job.GET("/session", h.GetSession)
	job.POST("/session", h.PostSession)
	job.GET("/operations", h.ListOperations)
	job.GET("/operation/:name", h.GetOperation)
	job.POST("/operation/:name", h.PostOperation)
	job.GET("/pipeline/run", h.RunPipeline)
	job.GET("/pipeline/stop", h.StopPipeline)
	job.GET("/artifacts", h.GetArtifactsManifest)
	job.GET("/artifacts/:mod_id/:filename", h.GetArtifactFile)
}
