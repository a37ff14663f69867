package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// ListenAndServe starts the given servers and blocks until they are all
// stopped. Servers are shut down when ctx is canceled, each one being given
// shutdownTimeout to drain its connections.
func ListenAndServe(ctx context.Context, shutdownTimeout time.Duration, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		for _, s := range servers {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
			cancel()
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed, context.Canceled:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.New("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter returns the route pattern of scene paths so that
// scene, entity and octant ids do not end up in metric labels. An empty
// string is returned on HTTP 301, 400, 404 or 405 status codes.
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	return routePattern(path)
}

// Paths are matched against the patterns segment by segment, the "{...}"
// segments matching anything.
var routePatterns = []string{
	"/scenes",
	"/scenes/{id}",
	"/scenes/{id}/config",
	"/scenes/{id}/rebuild",
	"/scenes/{id}/entities",
	"/scenes/{id}/entities/{entityID}",
	"/scenes/{id}/octree",
	"/scenes/{id}/octree/leaves",
	"/scenes/{id}/octree/debug",
	"/scenes/{id}/octree/octants/{octantID}",
	"/scenes/{id}/draw",
}

func routePattern(path string) string {
	segments := splitPath(path)

	for _, pattern := range routePatterns {
		patternSegments := splitPath(pattern)
		if len(patternSegments) != len(segments) {
			continue
		}

		match := true
		for i, s := range patternSegments {
			if s[0] != '{' && s != segments[i] {
				match = false
				break
			}
		}
		if match {
			return pattern
		}
	}
	return path
}

func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/'
	})
}
