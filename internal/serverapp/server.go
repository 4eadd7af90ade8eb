package serverapp

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/config"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/httpmw"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/live"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/server"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/ui/page"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/static"

	"github.com/a-h/templ"
)

type Options struct {
	Config        *config.Config
	Loop          *game.Loop
	Repo          game.StateRepository
	Hub           *live.Hub
	StaticDir     string
	UseDiskStatic bool
	Logger        *log.Logger
}

func NewHandler(opts Options) (http.Handler, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Loop == nil {
		return nil, errors.New("loop is required")
	}
	if opts.Repo == nil {
		return nil, errors.New("state repository is required")
	}
	if strings.TrimSpace(opts.StaticDir) == "" {
		opts.StaticDir = opts.Config.Server.StaticDir
	}
	if strings.TrimSpace(opts.StaticDir) == "" {
		opts.StaticDir = "static"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	mux := http.NewServeMux()

	staticHandler := http.FileServer(http.FS(static.FS()))
	if opts.UseDiskStatic || opts.Config.Server.DevStatic {
		staticHandler = http.FileServer(http.Dir(opts.StaticDir))
	}
	mux.Handle("/static/", http.StripPrefix("/static/", staticHandler))

	server.RegisterHealth(mux, opts.Repo)

	rr := &server.RouteRegistry{}
	server.NewAPI(opts.Loop, opts.Logger).Register(mux, rr)
	server.RegisterRouteList(mux, rr)

	if opts.Hub != nil {
		mux.Handle("GET /ws", opts.Hub)
	}

	agg := opts.Loop.Aggregator()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		templ.Handler(page.HomePage(agg.View())).ServeHTTP(w, r)
	})

	return httpmw.Chain(
		mux,
		httpmw.WithAccessLog(opts.Logger),
		httpmw.WithRequestID,
		httpmw.WithRecover(opts.Logger),
	), nil
}

func UseDiskStaticByEnv() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("RAT_DEV_STATIC"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}
