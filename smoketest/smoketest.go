package smoketest

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"slices"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/octant/octree"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"

	ErrTypeScenarioFailed = "smoke_test_scenario_failed"

	defaultRandomEntityCount = 1000
	maxRandomEntityCount     = 100000
	maxBodySize              = 1 << 20
)

type Options struct {
	// The configuration of the random cloud scenario.
	Config octree.Config
}

// Request is the optional body of a smoke test request.
type Request struct {
	RandomEntityCount int   `json:"random_entity_count,omitempty"`
	Seed              int64 `json:"seed,omitempty"`
}

type Result struct {
	Name            string  `json:"name"`
	Status          Status  `json:"status"`
	OctantCount     int     `json:"octant_count"`
	LeafCount       int     `json:"leaf_count"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type Report struct {
	Status  Status   `json:"status"`
	Results []Result `json:"results"`
}

// HandleSmokeTest builds octrees for a set of known scenarios, checks their
// invariants and expected shapes, and responds with a report.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid smoke test request",
			})
			return
		}

		if req.RandomEntityCount <= 0 {
			req.RandomEntityCount = defaultRandomEntityCount
		}
		req.RandomEntityCount = min(req.RandomEntityCount, maxRandomEntityCount)

		if req.Seed == 0 {
			req.Seed = time.Now().UnixNano()
		}

		scenarios := append(canonicalScenarios(), randomCloudScenario(opts.Config, req.RandomEntityCount, req.Seed))
		report := Run(ctx, scenarios)

		code := http.StatusOK
		if report.Status != StatusSuccess {
			code = http.StatusInternalServerError
		}
		writeJSON(w, code, report)
	}
}

// Scenario is a tree construction whose result is checked against
// expectations.
type Scenario struct {
	Name     string
	Entities octree.Boxes
	Config   octree.Config

	// Checks the expected shape of the tree. Tree invariants are always
	// checked.
	Check func(*octree.Tree) error
}

// Run runs the given scenarios. Scenarios that are not run because ctx is
// canceled are reported as failed.
func Run(ctx context.Context, scenarios []Scenario) Report {
	report := Report{
		Status:  StatusSuccess,
		Results: make([]Result, 0, len(scenarios)),
	}

	for _, s := range scenarios {
		res := runScenario(ctx, s)
		if res.Status != StatusSuccess {
			report.Status = StatusFailed
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func runScenario(ctx context.Context, s Scenario) Result {
	res := Result{
		Name:   s.Name,
		Status: StatusSuccess,
	}

	if err := ctx.Err(); err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		return res
	}

	start := time.Now()
	tree := octree.New(s.Entities, s.Config)
	res.LatencyMilliSec = float64(time.Since(start)) / float64(time.Millisecond)
	res.OctantCount = tree.OctantCount()
	res.LeafCount = len(tree.Leaves())

	err := tree.Validate()
	if err == nil && s.Check != nil {
		err = s.Check(tree)
	}

	if err != nil {
		err = errors.New("smoke test scenario failed").
			WithType(ErrTypeScenarioFailed).
			WithTag("scenario", s.Name).
			Wrap(err)
		logs.Warn(err)

		res.Status = StatusFailed
		res.Error = err.Error()
	}
	return res
}

func canonicalScenarios() []Scenario {
	corners := octree.Boxes{
		{Min: mgl32.Vec3{-4, -4, -4}, Max: mgl32.Vec3{-3, -3, -3}},
		{Min: mgl32.Vec3{3, 3, 3}, Max: mgl32.Vec3{4, 4, 4}},
	}

	cluster := slices.Clone(corners)
	for i := 0; i < 10; i++ {
		cluster = append(cluster, octree.Box{
			Min: mgl32.Vec3{1, 1, 1},
			Max: mgl32.Vec3{1.5, 1.5, 1.5},
		})
	}

	straddling := append(slices.Clone(corners), octree.Box{
		Min: mgl32.Vec3{-1, -3, -3},
		Max: mgl32.Vec3{1, -2, -2},
	})

	return []Scenario{
		{
			Name: "single entity",
			Entities: octree.Boxes{
				{Min: mgl32.Vec3{-1, -1, -1}, Max: mgl32.Vec3{1, 1, 1}},
			},
			Config: octree.DefaultConfig(),
			Check: func(t *octree.Tree) error {
				if err := expectCount("octant count", t.OctantCount(), 1); err != nil {
					return err
				}
				return expectLeaves(t, octree.RootID)
			},
		},
		{
			Name:     "cluster stops at max level",
			Entities: cluster,
			Config:   octree.Config{MaxLevel: 2, IdealEntityCount: 5},
			Check: func(t *octree.Tree) error {
				if err := expectCount("octant count", t.OctantCount(), 17); err != nil {
					return err
				}
				if err := expectLeaves(t, 1, 9, 16); err != nil {
					return err
				}

				o, _ := t.Octant(9)
				return expectCount("cluster octant entity count", len(o.Entities()), 10)
			},
		},
		{
			Name:     "straddling entity",
			Entities: straddling,
			Config:   octree.Config{MaxLevel: 1, IdealEntityCount: 1},
			Check: func(t *octree.Tree) error {
				if err := expectLeaves(t, 1, 2, 8); err != nil {
					return err
				}

				negative, _ := t.Octant(1)
				positive, _ := t.Octant(2)
				if !slices.Contains(negative.Entities(), 2) || !slices.Contains(positive.Entities(), 2) {
					return errors.New("straddling entity is not assigned to both octants")
				}
				return nil
			},
		},
		{
			Name:     "max level zero",
			Entities: cluster,
			Config:   octree.Config{MaxLevel: 0, IdealEntityCount: 1},
			Check: func(t *octree.Tree) error {
				if err := expectCount("octant count", t.OctantCount(), 1); err != nil {
					return err
				}
				return expectCount("root entity count", len(t.Root().Entities()), len(cluster))
			},
		},
	}
}

func randomCloudScenario(c octree.Config, n int, seed int64) Scenario {
	r := rand.New(rand.NewSource(seed))

	entities := make(octree.Boxes, n)
	for i := range entities {
		center := mgl32.Vec3{
			r.Float32()*200 - 100,
			r.Float32()*200 - 100,
			r.Float32()*200 - 100,
		}
		half := r.Float32() * 2
		entities[i] = octree.Box{
			Min: center.Sub(mgl32.Vec3{half, half, half}),
			Max: center.Add(mgl32.Vec3{half, half, half}),
		}
	}

	return Scenario{
		Name:     "random cloud",
		Entities: entities,
		Config:   c,
		Check: func(t *octree.Tree) error {
			if info := t.DebugInfo(); info.DeepestLevel > c.MaxLevel {
				return errors.New("tree is deeper than the max level").
					WithTag("deepest_level", info.DeepestLevel)
			}
			return nil
		},
	}
}

func expectCount(name string, v, expected int) error {
	if v != expected {
		return errors.Newf("unexpected %s", name).
			WithTag("value", v).
			WithTag("expected", expected)
	}
	return nil
}

func expectLeaves(t *octree.Tree, expected ...uint32) error {
	if leaves := t.Leaves(); !slices.Equal(leaves, expected) {
		return errors.New("unexpected leaves").
			WithTag("leaves", leaves).
			WithTag("expected", expected)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logs.Warn(errors.New("encoding smoke test response failed").Wrap(err))
	}
}
