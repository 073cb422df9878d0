package bottles

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/loopfz/gadgeto/tonic"
	"github.com/onebottle/onebottle-api/pkg/bottles/handler"
	"github.com/onebottle/onebottle-api/pkg/bottles/middleware"
	"github.com/wI2L/fizz"
	"github.com/wI2L/fizz/openapi"
)

var (
	apiVersionHeader = fizz.Header(
		"API-Version",
		"API version of the response",
		"",
	)

	badRequestResponse = fizz.Response("400", "Bad Request", nil, nil, nil)
	forbiddenResponse  = fizz.Response("403", "Forbidden", nil, nil, nil)
	notFoundResponse   = fizz.Response("404", "Not Found", nil, nil, nil)
	tooManyResponse    = fizz.Response("429", "Daily quota reached", nil, nil, nil)
)

// RouterConfig carries the settings NewRouter needs beyond the controllers.
type RouterConfig struct {
	Version        string
	PublicBaseURL  string
	AllowedOrigins []string
	AdminSecret    string
}

func NewRouter(cfg RouterConfig, bottles *handler.BottlesController, admin *handler.AdminController) *fizz.Fizz {
	g := gin.Default()
	g.Use(corsMiddleware(cfg.AllowedOrigins))
	g.Use(APIVersionMiddleware(cfg.Version))
	f := fizz.NewFromEngine(g)

	gen := f.Generator()
	if cfg.PublicBaseURL != "" {
		gen.SetServers([]*openapi.Server{{URL: cfg.PublicBaseURL, Description: "Public"}})
	}
	gen.API().Components.Headers["API-Version"] = &openapi.HeaderOrRef{
		Header: &openapi.Header{
			Description: "API version of the response",
			Schema: &openapi.SchemaOrRef{
				Schema: &openapi.Schema{
					Type: "string",
				},
			},
		},
	}

	info := &openapi.Info{
		Title:       "OneBottle API",
		Description: "Leave one bottle, discover the bottles of others.",
		Version:     cfg.Version,
	}

	sub := f.Group("/submissions", "Submissions", "Leaving a bottle")
	sub.POST("",
		[]fizz.OperationOption{
			fizz.Summary("Submit your one bottle (multipart: file, owner)"),
			apiVersionHeader,
			badRequestResponse,
			forbiddenResponse,
		},
		tonic.Handler(bottles.Submit, 200),
	)
	sub.POST("/check",
		[]fizz.OperationOption{
			fizz.Summary("Check whether an identity already left a bottle"),
			apiVersionHeader,
		},
		tonic.Handler(bottles.Check, 200),
	)

	disc := f.Group("", "Discovery", "Finding bottles")
	disc.POST("/discovery",
		[]fizz.OperationOption{
			fizz.Summary("Discover a random bottle you have not seen yet"),
			apiVersionHeader,
			badRequestResponse,
			tooManyResponse,
		},
		tonic.Handler(bottles.Discover, 200),
	)
	disc.GET("/artifacts/:id",
		[]fizz.OperationOption{
			fizz.Summary("Retrieve a single bottle"),
			apiVersionHeader,
			notFoundResponse,
		},
		tonic.Handler(bottles.RetrieveArtifact, 200),
	)
	g.GET("/media/*key", bottles.Media)

	adm := f.Group("/admin", "Admin", "Operator endpoints", middleware.RequireAccess(cfg.AdminSecret, middleware.AdminScope))
	adm.GET("/stats",
		[]fizz.OperationOption{
			fizz.Summary("Bottle, exposure and blob counts"),
			apiVersionHeader,
		},
		tonic.Handler(admin.Stats, 200),
	)
	adm.POST("/sweep",
		[]fizz.OperationOption{
			fizz.Summary("Delete blobs no bottle refers to"),
			apiVersionHeader,
		},
		tonic.Handler(admin.Sweep, 200),
	)

	f.GET("/openapi.json", []fizz.OperationOption{}, f.OpenAPI(info, "json"))

	return f
}

// corsMiddleware allows every origin unless a list is configured.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"API-Version"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

type apiVersionWriter struct {
	gin.ResponseWriter
	version string
}

func (w *apiVersionWriter) WriteHeader(code int) {
	if code >= 200 && code < 300 {
		w.Header().Set("API-Version", w.version)
	}
	w.ResponseWriter.WriteHeader(code)
}

func APIVersionMiddleware(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer = &apiVersionWriter{c.Writer, version}
		c.Next()
	}
}
