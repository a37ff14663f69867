package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/octant/featureflag"
	octanthttp "github.com/aukilabs/octant/http"
	"github.com/aukilabs/octant/models"
	"github.com/aukilabs/octant/octree"
	"github.com/aukilabs/octant/smoketest"
	owebsocket "github.com/aukilabs/octant/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Octant version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "octant_info",
		Help:        "Octant information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"OCTANT_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"OCTANT_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"OCTANT_PUBLIC_ENDPOINT"      help:"The public endpoint where this Octant server is reachable."`
	LogLevel           string        `cli:""        env:"OCTANT_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"OCTANT_LOG_INDENT"           help:"Indent logs."`
	MaxLevel           uint32        `cli:""        env:"OCTANT_MAX_LEVEL"            help:"The default max subdivision level of scene octrees."`
	IdealEntityCount   uint32        `cli:""        env:"OCTANT_IDEAL_ENTITY_COUNT"   help:"The default entity count above which an octant gets subdivided."`
	MaxLevelLimit      uint32        `cli:",hidden" env:"OCTANT_MAX_LEVEL_LIMIT"      help:"The deepest max level a scene can be configured with."`
	StreamInterval     time.Duration `cli:",hidden" env:"OCTANT_STREAM_INTERVAL"      help:"The interval between each scene change check of debug-draw streams."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"OCTANT_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle debug-draw client will be disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"OCTANT_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	ShutdownTimeout    time.Duration `cli:",hidden" env:"OCTANT_SHUTDOWN_TIMEOUT"     help:"The time given to servers to drain their connections on exit."`
	Events             eventsConfig  `cli:",hidden" env:"-"                           help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"OCTANT_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                           help:"Show version."`
	Help               bool          `cli:""        env:"-"                           help:"Show help."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"OCTANT_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed. Events are disabled when empty."`
	FlushInterval time.Duration `cli:",hidden" env:"OCTANT_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"OCTANT_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"OCTANT_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	defaultConfig := octree.DefaultConfig()

	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		MaxLevel:           defaultConfig.MaxLevel,
		IdealEntityCount:   defaultConfig.IdealEntityCount,
		MaxLevelLimit:      8,
		StreamInterval:     time.Millisecond * 100,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		ShutdownTimeout:    time.Second * 10,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Octant server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "octant",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)
	treeConfig := octree.Config{
		MaxLevel:         conf.MaxLevel,
		IdealEntityCount: conf.IdealEntityCount,
	}

	var scenes models.SceneStore
	sceneHandler := octanthttp.HandleWithCORS(&octanthttp.SceneHandler{
		Scenes:        &scenes,
		DefaultConfig: treeConfig,
		MaxLevelLimit: conf.MaxLevelLimit,
		FeatureFlags:  featureFlags,
	})

	var service http.ServeMux
	service.Handle("/scenes", sceneHandler)
	service.Handle("/scenes/", sceneHandler)
	service.Handle("/health", octanthttp.HandleWithCORS(http.HandlerFunc(octanthttp.HandleHealthCheck)))
	service.Handle("/version", octanthttp.HandleWithCORS(http.HandlerFunc(octanthttp.HandleVersion(version))))
	service.HandleFunc("POST /smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Config: treeConfig,
	}))

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}
	service.Handle("/ready", octanthttp.HandleWithCORS(http.HandlerFunc(octanthttp.HandleReadyCheck(readinessCheck))))

	featureFlags.IfNotSet(featureflag.FlagDisableDebugDraw, func() {
		service.Handle("GET /scenes/{id}/draw", websocket.Server{
			Handshake: func(c *websocket.Config, r *http.Request) error {
				return nil
			},
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				var h owebsocket.Handler = &owebsocket.DrawHandler{
					ClientStreamInterval: conf.StreamInterval,
					ClientIdleTimeout:    conf.ClientIdleTimeout,
					Scenes:               &scenes,
				}
				h = owebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
				h = owebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
				defer h.Close()

				owebsocket.Handle(ctx, conn, h)
			},
		})
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", octanthttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", octanthttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("max_level", conf.MaxLevel).
		WithTag("ideal_entity_count", conf.IdealEntityCount).
		WithTag("feature_flags", featureFlags.Names()).
		Info("starting octant server")

	octanthttp.ListenAndServe(ctx, conf.ShutdownTimeout,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			octanthttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.MaxLevel > conf.MaxLevelLimit {
		return errors.New("max level is greater than the max level limit").
			WithTag("max_level", conf.MaxLevel).
			WithTag("max_level_limit", conf.MaxLevelLimit)
	}

	if conf.StreamInterval <= 0 {
		return errors.New("stream interval must be positive").
			WithTag("stream_interval", conf.StreamInterval)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}
	return nil
}
