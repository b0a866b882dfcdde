// ════════════════════════════════════════════════════════════════════════════════════════════════
// Run Supervisor
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Project: Multiple Change Detector
// Component: Lifecycle Orchestration
//
// Description:
//   Plans the detector layout for N signals, allocates every shared structure, and drives one
//   run through its start/stop sequence. The order of the stop sequence is what guarantees a
//   complete event stream: producers are joined before the drain is halted.
//
// Run sequence:
//   1. start the output drain
//   2. start one goroutine per detector
//   3. start the generator
//   4. wait for the run duration or context cancellation
//   5. drop the run flag and join the generator
//   6. sleep the grace period so detectors resolve the last toggles
//   7. cancel and join the detectors
//   8. halt and join the drain
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pacedetect/audit"
	"pacedetect/bus"
	"pacedetect/config"
	"pacedetect/control"
	"pacedetect/cpu"
	"pacedetect/detector"
	"pacedetect/generator"
	"pacedetect/metrics"
	"pacedetect/ring"
	"pacedetect/sink"
	"pacedetect/types"
)

// ErrReused is returned when Run is called more than once.
var ErrReused = errors.New("supervisor: run already started")

// Supervisor owns every actor of one run.
type Supervisor struct {
	cfg    config.RunConfig
	layout detector.Layout
	log    *zap.Logger

	bus     *bus.Bus
	ring    *ring.Ring
	ctl     *control.Control
	metrics *metrics.Metrics
	sink    *sink.Sink
	gen     *generator.Generator
	dets    []detector.Detector

	started atomic.Bool
}

// New plans and allocates a run over n signals writing the protocol to out.
func New(n int, cfg *config.Config, out io.Writer, log *zap.Logger) (*Supervisor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	layout, err := detector.Plan(n, cfg.Run.Threads)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	s := &Supervisor{
		cfg:     cfg.Run,
		layout:  layout,
		log:     log,
		bus:     bus.New(n, layout.Packed()),
		ring:    ring.New(cfg.Run.RingSize),
		ctl:     control.New(),
		metrics: metrics.New(layout.Strategy.String()),
	}
	s.sink = sink.New(s.ring, out, s.metrics, cfg.Run.Audit)
	s.gen = generator.New(s.bus, s.ring, s.ctl, types.Now, cfg.Generator())
	s.dets = detector.Build(layout, s.bus, s.ring, types.Now)

	s.metrics.Signals.Set(float64(n))
	s.metrics.Detectors.Set(float64(layout.Threads))
	return s, nil
}

// Layout returns the planned layout.
func (s *Supervisor) Layout() detector.Layout { return s.layout }

// Metrics returns the run's collectors.
func (s *Supervisor) Metrics() *metrics.Metrics { return s.metrics }

// Run executes the run sequence once and reports on it.
func (s *Supervisor) Run(ctx context.Context) (*Summary, error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, ErrReused
	}

	s.log.Info("open threads", zap.Int("threads", s.layout.Threads))
	s.log.Info("array elements", zap.Int("cells", s.layout.Cells))
	s.log.Info("actual signals", zap.Int("signals", s.layout.Signals))
	s.log.Info("strategy",
		zap.Stringer("strategy", s.layout.Strategy),
		zap.Bool("packed", s.layout.Packed()),
		zap.Bool("ack", s.cfg.Ack),
		zap.Bool("pin", s.cfg.Pin),
	)

	var cores []int
	if s.cfg.Pin {
		cores = cpu.Allowed()
	}
	core := func(slot int) int { return coreFor(cores, slot) }

	begin := time.Now()

	// 1. drain
	drained := s.sink.Start(s.ctl, core(s.layout.Threads+1))

	// 2. detectors
	var detectors errgroup.Group
	for id, d := range s.dets {
		slot := core(id)
		detectors.Go(func() error {
			s.pin("detector", id, slot)
			detector.Run(d, s.ctl)
			return nil
		})
	}

	// 3. generator
	generated := make(chan struct{})
	go func() {
		defer close(generated)
		s.pin("generator", 0, core(s.layout.Threads))
		s.gen.Run()
	}()

	// 4. wait
	timer := time.NewTimer(s.cfg.Duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		s.log.Info("run interrupted", zap.Error(ctx.Err()))
	}

	// 5. stop generator
	s.ctl.Stop()
	<-generated

	// 6. grace
	if s.cfg.Grace > 0 {
		time.Sleep(s.cfg.Grace)
	}

	// 7. cancel detectors
	s.ctl.Cancel()
	detErr := detectors.Wait()

	// 8. halt drain
	s.ctl.Halt()
	drainErr := <-drained

	elapsed := time.Since(begin)
	sum := s.summarize(elapsed)
	if s.cfg.Audit {
		rep, err := audit.Verify(ctx, s.sink.Events())
		if err != nil {
			s.log.Warn("audit failed", zap.Error(err))
		} else {
			sum.Audit = &rep
		}
	}

	s.log.Info("run complete",
		zap.Duration("elapsed", elapsed),
		zap.Uint64("toggles", sum.Toggles),
		zap.Uint64("changes", sum.Changes),
		zap.Uint64("detections", sum.Detections),
		zap.Int64("pending", sum.Pending()),
		zap.String("digest", sum.Digest),
	)
	return sum, errors.Join(detErr, drainErr)
}

// coreFor maps a thread slot onto the allowed CPUs, wrapping when slots
// outnumber them. No allowed CPUs means no pinning.
func coreFor(allowed []int, slot int) int {
	if len(allowed) == 0 {
		return -1
	}
	return allowed[slot%len(allowed)]
}

// pin locks the calling goroutine to its OS thread and binds it to core.
// A negative core leaves scheduling to the runtime. The thread stays
// locked until the goroutine exits, which retires it.
func (s *Supervisor) pin(role string, id, core int) {
	if core < 0 {
		return
	}
	runtime.LockOSThread()
	if err := cpu.Pin(core); err != nil {
		s.log.Warn("affinity failed",
			zap.String("role", role),
			zap.Int("id", id),
			zap.Int("core", core),
			zap.Error(err),
		)
	}
}

func (s *Supervisor) summarize(elapsed time.Duration) *Summary {
	per := make([]uint64, len(s.dets))
	for i, d := range s.dets {
		per[i] = d.Detected()
	}
	return &Summary{
		Signals:     s.layout.Signals,
		Strategy:    s.layout.Strategy.String(),
		Cells:       s.layout.Cells,
		Detectors:   s.layout.Threads,
		Ack:         s.cfg.Ack,
		ElapsedUS:   elapsed.Microseconds(),
		Toggles:     s.gen.Toggles(),
		Changes:     s.sink.Changes(),
		Detections:  s.sink.Detections(),
		PerDetector: per,
		Metrics:     s.metrics.Snapshot(),
		Digest:      s.sink.Digest(),
	}
}

// Summary reports one finished run.
type Summary struct {
	Signals     int              `json:"signals"`
	Strategy    string           `json:"strategy"`
	Cells       int              `json:"cells"`
	Detectors   int              `json:"detectors"`
	Ack         bool             `json:"ack"`
	ElapsedUS   int64            `json:"elapsed_us"`
	Toggles     uint64           `json:"toggles"`
	Changes     uint64           `json:"changes"`
	Detections  uint64           `json:"detections"`
	PerDetector []uint64         `json:"per_detector"`
	Metrics     metrics.Snapshot `json:"metrics"`
	Digest      string           `json:"digest"`
	Audit       *audit.Report    `json:"audit,omitempty"`
}

// Pending returns the number of activations left without a detection.
func (s *Summary) Pending() int64 {
	return int64(s.Changes) - int64(s.Detections)
}

// Encode renders the summary as one JSON line.
func (s *Summary) Encode() ([]byte, error) {
	b, err := sonnet.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("supervisor: encode summary: %w", err)
	}
	return append(b, '\n'), nil
}

// String renders the summary for diagnostics.
func (s *Summary) String() string {
	return s.Strategy + " n=" + strconv.Itoa(s.Signals) +
		" C=" + strconv.FormatUint(s.Changes, 10) +
		" D=" + strconv.FormatUint(s.Detections, 10)
}
