package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"dayplan/internal/classifier"
	"dayplan/internal/logx"
	"dayplan/internal/planner"
)

// Config for the HTTP API handler.
type Config struct {
	Classifier classifier.Classifier
	Planner    planner.Planner
	// Defaults apply to classify requests that omit top_k or unknown_threshold.
	Defaults    classifier.Options
	BasePath    string
	CORSOrigins []string
	// RatePerSec limits /classify; zero disables limiting.
	RatePerSec float64
	Burst      int
	Log        logx.Logger
	Now        func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"model_not_ready"`
	Message string         `json:"message" example:"model not ready"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the dayplan API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("server: classifier required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(accessLog(cfg.Log))
	if len(cfg.CORSOrigins) > 0 {
		router.Use(corsMiddleware(cfg.CORSOrigins))
	}
	if cfg.RatePerSec > 0 {
		router.Use(rateLimit(path.Join(basePath, "classify"), cfg.RatePerSec, cfg.Burst))
	}
	hcfg := huma.DefaultConfig("dayplan API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, cfg.Classifier)
	registerClassify(group, cfg)
	registerCategories(group, cfg.Classifier)
	registerSchedule(group, cfg)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// writeError renders the envelope outside of huma handlers.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(newAPIError(status, code, message, nil))
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	specPath := path.Join(basePath, "openapi.json")
	spec := sync.OnceValue(func() []byte {
		oas := api.OpenAPI()
		ensureDefaultErrorResponses(oas)
		b, _ := json.Marshal(oas)
		return b
	})
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec())
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	errSchema := &huma.Schema{Type: huma.TypeObject}
	if oas.Components != nil && oas.Components.Schemas != nil {
		errSchema = oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>dayplan API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API, c classifier.Classifier) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", ModelReady: c.Loaded(ctx), Loading: loading(c)}}, nil
	})
}

// loading reports an in-progress load for classifiers that track one.
func loading(c classifier.Classifier) bool {
	l, ok := c.(interface{ Loading() bool })
	return ok && l.Loading()
}

func registerClassify(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "classify",
		Method:      http.MethodPost,
		Path:        "/classify",
		Summary:     "Classify a text into the category taxonomy",
		Description: "Never fails on model state: until the model is loaded the answer is Uncategorized with model_ready=false.",
	}, func(ctx context.Context, input *struct {
		Body ClassifyRequest `json:"body"`
	}) (*struct {
		Body ClassifyResponse `json:"body"`
	}, error) {
		opts := cfg.Defaults
		opts.Block = false
		if input.Body.TopK != nil {
			opts.TopK = *input.Body.TopK
		}
		if input.Body.UnknownThreshold != nil {
			opts.UnknownThreshold = *input.Body.UnknownThreshold
		}
		res := cfg.Classifier.Classify(ctx, input.Body.Text, opts)
		return &struct {
			Body ClassifyResponse `json:"body"`
		}{Body: mapClassification(res)}, nil
	})
}

func registerCategories(api huma.API, c classifier.Classifier) {
	huma.Register(api, huma.Operation{
		OperationID: "list-categories",
		Method:      http.MethodGet,
		Path:        "/categories",
		Summary:     "List categories of the loaded taxonomy",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body CategoriesResponse `json:"body"`
	}, error) {
		meta, ok := c.Metadata(ctx)
		if !ok {
			return nil, newAPIError(http.StatusServiceUnavailable, "model_not_ready", "model not ready", nil)
		}
		return &struct {
			Body CategoriesResponse `json:"body"`
		}{Body: mapCategories(meta)}, nil
	})
}

func registerSchedule(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "schedule",
		Method:      http.MethodPost,
		Path:        "/schedule",
		Summary:     "Lay tasks out over a day window",
	}, func(ctx context.Context, input *struct {
		Body ScheduleRequest `json:"body"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		today := cfg.Now().UTC().Format("2006-01-02")
		window, err := toWindow(input.Body.Window, today)
		if err != nil {
			return nil, handleError(err)
		}
		if window.EndMinute <= window.StartMinute {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "window.end must be after window.start", nil)
		}
		events, stats := cfg.Planner.Schedule(toTasks(input.Body.Tasks), window)
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: mapSchedule(events, stats)}, nil
	})
}
