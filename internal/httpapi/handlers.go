package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ironsheep/digit-normalizer/internal/classify"
	"github.com/ironsheep/digit-normalizer/internal/imaging"
	"github.com/ironsheep/digit-normalizer/internal/pipeline"
)

// Error messages returned to clients.
const (
	errNoImage        = "No image data provided"
	errProcessImage   = "Failed to process image"
	errModelNotLoaded = "Model not loaded"
	errTrainModel     = "Model not loaded. Please train the model first."
)

// healthProbeTimeout bounds the backend probe made by /api/health?deep=true.
const healthProbeTimeout = 3 * time.Second

type imageRequest struct {
	Image *string `json:"image"`
}

// NormalizeResponse is the /api/normalize body.
type NormalizeResponse struct {
	*pipeline.Result

	CanvasImage *imaging.EncodedImage `json:"canvas"`
	TensorShape []int                 `json:"tensor_shape"`
	Tensor      []float32             `json:"tensor"`
}

// HealthResponse is the /api/health body.
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Backend     string `json:"backend,omitempty"`

	// BackendError is set when a deep probe of the classifier failed.
	BackendError string `json:"backend_error,omitempty"`
}

// runPipeline binds the request image and normalizes it. On failure it
// writes the error response and returns nil.
func (a *API) runPipeline(c *gin.Context) *pipeline.Result {
	var req imageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errNoImage})
		return nil
	}

	res, err := a.normalizer.Normalize(*req.Image)
	if err != nil {
		a.metrics.outcomes.WithLabelValues(outcomeDecodeError).Inc()
		log.Info().Str("component", "HTTP_API").Str("request_id", c.GetString("request_id")).
			Err(err).Msg("rejected undecodable image")
		c.JSON(http.StatusBadRequest, gin.H{"error": errProcessImage})
		return nil
	}

	a.metrics.outcome(res.Found, res.Repaired)
	if !res.DarkOnLight {
		log.Warn().Str("component", "HTTP_API").Str("request_id", c.GetString("request_id")).
			Float64("border_lightness", res.BorderLightness).
			Msg("capture looks light-on-dark; inversion will produce a dark digit")
	}
	return res
}

func (a *API) predict(c *gin.Context) {
	if a.classifier == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errTrainModel})
		return
	}

	res := a.runPipeline(c)
	if res == nil {
		return
	}

	ctx := c.Request.Context()
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	pred, err := a.classifier.Classify(ctx, res.Tensor)
	if err != nil {
		log.Error().Str("component", "HTTP_API").Str("request_id", c.GetString("request_id")).
			Err(err).Msg("classification failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pred)
}

func (a *API) normalize(c *gin.Context) {
	res := a.runPipeline(c)
	if res == nil {
		return
	}

	canvas, err := imaging.EncodePNG(res.Canvas)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, &NormalizeResponse{
		Result:      res,
		CanvasImage: canvas,
		TensorShape: res.Tensor.Shape(),
		Tensor:      res.Tensor.Flatten(),
	})
}

func (a *API) health(c *gin.Context) {
	resp := HealthResponse{
		Status:      "healthy",
		ModelLoaded: a.classifier != nil,
	}
	if a.classifier != nil {
		resp.Backend = a.classifier.Info().Backend
	}

	if c.Query("deep") == "true" {
		if hc, ok := a.classifier.(classify.HealthChecker); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
			defer cancel()
			if err := hc.Health(ctx); err != nil {
				resp.BackendError = err.Error()
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (a *API) modelInfo(c *gin.Context) {
	if a.classifier == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errModelNotLoaded})
		return
	}
	c.JSON(http.StatusOK, a.classifier.Info())
}
