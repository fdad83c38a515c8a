package replay

import (
	"context"
	"fmt"

	"github.com/beyawnko/Majestik-World/internal/delta"
	"github.com/beyawnko/Majestik-World/internal/gateway"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// CallError reports a gateway call that did not return OK.
type CallError struct {
	Op   string
	Tick uint64
	Code gateway.Code
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s at tick %d: %v", e.Op, e.Tick, e.Code)
}

// Sink receives every published block, for example a database journal.
type Sink interface {
	Write(ctx context.Context, tick uint64, block []byte) error
	Flush(ctx context.Context) error
}

// TickResult summarizes the block published for one tick.
type TickResult struct {
	Tick    uint64
	Records int
	Bytes   int
	Digest  [32]byte
}

// Report is the outcome of one run.
type Report struct {
	Script           string
	Ticks            []TickResult // tick 0 first
	Final            []byte       // exported config at the last tick
	TimeSeconds      float64
	TimeOfDaySeconds float64
	PeakLive         int // most blocks outstanding at once
	Reclaimed        int // blocks still unreleased at shutdown
	Records          int
	Bytes            int
}

// Runner plays scripts against a gateway.
type Runner struct {
	gw         *gateway.Gateway
	log        *zap.Logger
	releaseLag int
	sink       Sink
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithReleaseLag keeps each block for n further ticks before releasing it.
// Blocks still held at the end are left for shutdown to reclaim.
func WithReleaseLag(n int) Option {
	return func(r *Runner) { r.releaseLag = n }
}

func WithSink(s Sink) Option {
	return func(r *Runner) { r.sink = s }
}

func NewRunner(gw *gateway.Gateway, opts ...Option) *Runner {
	r := &Runner{gw: gw, log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run initializes a simulation from initBlob (the script's own config when
// nil), submits every frame of s, and shuts the simulation down. The
// simulation is always shut down, also when the run fails.
func (r *Runner) Run(ctx context.Context, s *Script, initBlob []byte) (rep *Report, err error) {
	if initBlob == nil {
		if initBlob, err = s.ConfigBlob(); err != nil {
			return nil, err
		}
	}
	h, code := r.gw.Init(gateway.ABIVersion, initBlob)
	if code != gateway.OK {
		return nil, &CallError{Op: "init", Code: code}
	}
	log := r.log.With(zap.String("script", s.Name), zap.Uint64("sim", uint64(h)))
	rep = &Report{Script: s.Name}
	var held []gateway.Buffer

	defer func() {
		if code := r.gw.Shutdown(gateway.ABIVersion, h); code != gateway.OK && err == nil {
			err = &CallError{Op: "shutdown", Code: code}
		}
	}()

	publish := func() error {
		buf, code := r.gw.PublishDelta(gateway.ABIVersion, h)
		if code != gateway.OK {
			return &CallError{Op: "publish_delta", Code: code}
		}
		batch, err := delta.UnmarshalBatch(buf.Data)
		if err != nil {
			return fmt.Errorf("decode published block: %w", err)
		}
		rep.Ticks = append(rep.Ticks, TickResult{
			Tick:    batch.Tick,
			Records: len(batch.Records),
			Bytes:   len(buf.Data),
			Digest:  blake2b.Sum256(buf.Data),
		})
		rep.Records += len(batch.Records)
		rep.Bytes += len(buf.Data)
		if r.sink != nil {
			block := append([]byte(nil), buf.Data...)
			if err := r.sink.Write(ctx, batch.Tick, block); err != nil {
				return fmt.Errorf("sink tick %d: %w", batch.Tick, err)
			}
		}

		held = append(held, buf)
		if live := len(held); live > rep.PeakLive {
			rep.PeakLive = live
		}
		for len(held) > r.releaseLag {
			if code := r.gw.ReleaseBuffer(gateway.ABIVersion, h, held[0].Handle); code != gateway.OK {
				return &CallError{Op: "release_buffer", Tick: batch.Tick, Code: code}
			}
			held = held[1:]
		}
		return nil
	}

	if err := publish(); err != nil {
		return nil, err
	}
	for _, st := range s.Steps {
		frame := st.Frame()
		for i := 0; i < st.times(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, code := r.gw.Tick(gateway.ABIVersion, h, frame); code != gateway.OK {
				return nil, &CallError{Op: "tick", Tick: rep.lastTick() + 1, Code: code}
			}
			if err := publish(); err != nil {
				return nil, err
			}
		}
	}
	if r.sink != nil {
		if err := r.sink.Flush(ctx); err != nil {
			return nil, fmt.Errorf("flush sink: %w", err)
		}
	}

	if rep.Final, code = r.gw.ExportConfig(gateway.ABIVersion, h); code != gateway.OK {
		return nil, &CallError{Op: "export_config", Code: code}
	}
	rep.TimeSeconds, _ = r.gw.TimeSeconds(gateway.ABIVersion, h)
	rep.TimeOfDaySeconds, _ = r.gw.TimeOfDaySeconds(gateway.ABIVersion, h)
	rep.Reclaimed, _ = r.gw.LiveBuffers(gateway.ABIVersion, h)

	log.Info("replay finished",
		zap.Int("ticks", len(rep.Ticks)-1),
		zap.Int("records", rep.Records),
		zap.Int("bytes", rep.Bytes),
		zap.Int("unreleased", rep.Reclaimed),
	)
	return rep, nil
}

func (rep *Report) lastTick() uint64 {
	if len(rep.Ticks) == 0 {
		return 0
	}
	return rep.Ticks[len(rep.Ticks)-1].Tick
}
