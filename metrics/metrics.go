// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"context"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goutils "go.viam.com/utils"

	"go.viam.com/augment/gostream"
	"go.viam.com/augment/logging"
	"go.viam.com/augment/render"
	"go.viam.com/augment/shaders"
)

var (
	_ gostream.SourceStats = (*Metrics)(nil)
	_ shaders.CompileStats = (*Metrics)(nil)
	_ render.LoopStats     = (*Metrics)(nil)
)

// Metrics holds the collectors for one pipeline. It satisfies the stats hooks of the frame
// source, the program handles and the render loop.
type Metrics struct {
	registry *prometheus.Registry

	framesDecoded   prometheus.Counter
	sourceLoops     prometheus.Counter
	analysisSeconds prometheus.Histogram
	components      prometheus.Gauge
	compileFailures *prometheus.CounterVec
	tickOverruns    prometheus.Counter

	// The channel reports absolute values; they are read back through gauge funcs.
	backlog atomic.Int64
	dropped atomic.Uint64
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augment_frames_decoded_total",
			Help: "Frames decoded and pushed to the frame channel",
		}),
		sourceLoops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augment_source_loops_total",
			Help: "Times the video was restarted after reaching its end",
		}),
		analysisSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "augment_analysis_seconds",
			Help:    "Time spent analyzing one frame",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		components: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "augment_components",
			Help: "Connected components found in the last analyzed frame",
		}),
		compileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "augment_program_compile_failures_total",
			Help: "Failed program builds",
		}, []string{"program"}),
		tickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "augment_tick_overruns_total",
			Help: "Render ticks that took longer than the target tick",
		}),
	}
	m.registry.MustRegister(
		m.framesDecoded,
		m.sourceLoops,
		m.analysisSeconds,
		m.components,
		m.compileFailures,
		m.tickOverruns,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "augment_channel_backlog",
			Help: "Frames waiting in the frame channel",
		}, func() float64 { return float64(m.backlog.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "augment_frames_dropped_total",
			Help: "Frames overwritten before they were consumed",
		}, func() float64 { return float64(m.dropped.Load()) }),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// FrameDecoded counts a decoded frame.
func (m *Metrics) FrameDecoded() {
	m.framesDecoded.Inc()
}

// SourceLooped counts a restart of the video.
func (m *Metrics) SourceLooped() {
	m.sourceLoops.Inc()
}

// CompileFailed counts a failed build of the named program.
func (m *Metrics) CompileFailed(program string) {
	m.compileFailures.WithLabelValues(program).Inc()
}

// FrameAnalyzed records the duration and result size of one analysis.
func (m *Metrics) FrameAnalyzed(elapsed time.Duration, components int) {
	m.analysisSeconds.Observe(elapsed.Seconds())
	m.components.Set(float64(components))
}

// ChannelState records the frame channel's backlog and its running drop count.
func (m *Metrics) ChannelState(backlog int, dropped uint64) {
	m.backlog.Store(int64(backlog))
	m.dropped.Store(dropped)
}

// TickOverrun counts a tick that missed its target.
func (m *Metrics) TickOverrun() {
	m.tickOverruns.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics until closed.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// Serve starts serving /metrics on addr in the background. Use Addr to find the bound address
// when addr has port 0.
func (m *Metrics) Serve(addr string, logger logging.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listening for metrics on %q", addr)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	s := &Server{
		httpServer: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener:   lis,
		done:       make(chan struct{}),
	}
	goutils.PanicCapturingGo(func() {
		defer close(s.done)
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "error", err)
		}
	})
	logger.Infow("serving metrics", "addr", lis.Addr().String())
	return s, nil
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Close shuts the server down, waiting up to the context's deadline for open requests.
func (s *Server) Close(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	<-s.done
	return err
}
