package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/Skufu/liverscan/internal/analysis"
	"github.com/Skufu/liverscan/internal/features"
	"github.com/Skufu/liverscan/internal/interpret"
	"github.com/Skufu/liverscan/internal/store"
)

// formValue accepts a JSON number or string so API clients and the form
// page can submit either.
type formValue string

func (v *formValue) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = formValue(s)
		return nil
	}
	raw := strings.TrimSpace(string(b))
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return fmt.Errorf("value %s is neither a number nor a string", raw)
	}
	*v = formValue(raw)
	return nil
}

type AnalyzeRequest struct {
	Values map[string]formValue `json:"values" binding:"required,min=1"`
	// Policy is checked by interpret.ParsePolicy so JSON, form and CLI input
	// accept the same names.
	Policy string `json:"policy"`
}

type fieldProblem struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Fields  []fieldProblem `json:"fields,omitempty"`
}

type featureView struct {
	Name     string        `json:"name"`
	Label    string        `json:"label"`
	Kind     features.Kind `json:"kind"`
	Min      float64       `json:"min"`
	Max      float64       `json:"max"`
	Default  string        `json:"default"`
	Declared bool          `json:"declared"`
}

type featuresResponse struct {
	Features   []featureView          `json:"features"`
	Columns    [][]string             `json:"columns"`
	Classes    []interpret.ClassLabel `json:"classes"`
	Policy     interpret.Policy       `json:"policy"`
	Disclaimer string                 `json:"disclaimer"`
}

func setupRouter(svc *analysis.Service, db store.HealthChecker, staticRoot string, limiter *rate.Limiter) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Logger(),
		gin.Recovery(),
		otelgin.Middleware(serviceName),
		limitBodySize(1<<20), // 1MB max body
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
			MaxAge:       12 * time.Hour,
		}),
	)

	router.Static("/static", staticRoot)
	router.StaticFile("/", filepath.Join(staticRoot, "index.html"))
	router.StaticFile("/styles.css", filepath.Join(staticRoot, "styles.css"))
	router.StaticFile("/app.js", filepath.Join(staticRoot, "app.js"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		modelStatus := "loaded"
		if svc == nil {
			modelStatus = "missing"
		}

		if db == nil {
			status, code := "ok", http.StatusOK
			if svc == nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
			c.JSON(code, gin.H{"status": status, "model": modelStatus, "db": "disabled"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if err := db.Ping(ctx); err != nil {
			dbStatus = fmt.Sprintf("unhealthy: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"model":  modelStatus,
				"db":     dbStatus,
			})
			return
		}

		if svc == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "model": modelStatus, "db": dbStatus})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"model":  modelStatus,
			"db":     dbStatus,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", rateLimit(limiter))
	api.GET("/features", func(c *gin.Context) {
		if svc == nil {
			c.JSON(http.StatusServiceUnavailable, errorResponse{Error: string(analysis.KindModelUnavailable), Message: "model is not loaded"})
			return
		}
		c.JSON(http.StatusOK, describeSchema(svc))
	})
	api.POST("/analyze", func(c *gin.Context) {
		if svc == nil {
			c.JSON(http.StatusServiceUnavailable, errorResponse{Error: string(analysis.KindModelUnavailable), Message: "model is not loaded"})
			return
		}
		handleAnalyze(c, svc)
	})

	return router
}

func handleAnalyze(c *gin.Context, svc *analysis.Service) {
	values, policyName, ok := bindAnalyzeRequest(c)
	if !ok {
		return
	}

	if policyName != "" {
		policy, err := interpret.ParsePolicy(policyName)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: "validation_failed", Message: err.Error()})
			return
		}
		svc = svc.WithPolicy(policy)
	}

	report, err := svc.Analyze(c.Request.Context(), values)
	if err != nil {
		writeAnalysisError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// bindAnalyzeRequest reads either a JSON body or a submitted HTML form.
func bindAnalyzeRequest(c *gin.Context) (map[string]string, string, bool) {
	switch c.ContentType() {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := c.Request.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_payload", Message: "form could not be parsed"})
			return nil, "", false
		}
		values := make(map[string]string, len(c.Request.PostForm))
		policy := ""
		for k, v := range c.Request.PostForm {
			if len(v) == 0 {
				continue
			}
			if k == "policy" {
				policy = v[0]
				continue
			}
			values[k] = v[0]
		}
		return values, policy, true
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]fieldProblem, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fieldProblem{Field: fe.Field(), Reason: describeTag(fe)})
			}
			c.JSON(http.StatusUnprocessableEntity, errorResponse{
				Error:   "validation_failed",
				Message: "request did not pass validation",
				Fields:  problems,
			})
			return nil, "", false
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid_payload", Message: "invalid payload"})
		return nil, "", false
	}

	values := make(map[string]string, len(req.Values))
	for k, v := range req.Values {
		values[k] = string(v)
	}
	return values, req.Policy, true
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "lab values are required"
	case "min":
		return "at least one lab value is required"
	default:
		return "failed " + fe.Tag()
	}
}

func writeAnalysisError(c *gin.Context, err error) {
	kind := analysis.KindOf(err)
	switch kind {
	case analysis.KindInvalidInput:
		resp := errorResponse{Error: string(kind), Message: "some lab values are missing or invalid; please correct them and try again"}
		var ce *features.CollectError
		if errors.As(err, &ce) {
			for _, f := range ce.Fields {
				resp.Fields = append(resp.Fields, fieldProblem{Field: f.Feature, Reason: f.Reason})
			}
		}
		c.JSON(http.StatusUnprocessableEntity, resp)
	case analysis.KindConfigMismatch:
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   string(kind),
			Message: "the model output does not match the configured disease classes; interpretation was aborted",
		})
	case analysis.KindModelUnavailable:
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: string(kind), Message: "the model is not available"})
	case analysis.KindTimeout:
		c.JSON(http.StatusGatewayTimeout, errorResponse{Error: string(kind), Message: "the model did not respond in time"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: string(analysis.KindInternal), Message: "analysis failed"})
	}
}

func describeSchema(svc *analysis.Service) featuresResponse {
	schema := svc.Schema()
	defaults := schema.Defaults()

	resp := featuresResponse{
		Classes:    interpret.Classes(),
		Policy:     svc.Policy(),
		Disclaimer: interpret.Disclaimer,
	}
	for _, f := range schema.Fields() {
		resp.Features = append(resp.Features, featureView{
			Name:     f.Name,
			Label:    f.Spec.Label,
			Kind:     f.Spec.Kind,
			Min:      f.Spec.Min,
			Max:      f.Spec.Max,
			Default:  defaults[f.Name],
			Declared: f.Declared,
		})
	}
	for _, col := range schema.Columns(2) {
		names := make([]string, len(col))
		for i, f := range col {
			names[i] = f.Name
		}
		resp.Columns = append(resp.Columns, names)
	}
	return resp
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "too many requests, slow down"})
			return
		}
		c.Next()
	}
}
