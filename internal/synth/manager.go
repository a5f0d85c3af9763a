// Package synth orchestrates one synthesis request end-to-end: validate,
// acquire a backend worker slot, drive generation, assemble audio, emit.
package synth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/orpheuslabs/orpheusd/internal/audio"
	"github.com/orpheuslabs/orpheusd/internal/backend"
	"github.com/orpheuslabs/orpheusd/internal/bus"
	"github.com/orpheuslabs/orpheusd/internal/config"
	"github.com/orpheuslabs/orpheusd/internal/protocol"
	"github.com/orpheuslabs/orpheusd/internal/request"
)

// Manager owns the worker slots and shared pipeline dependencies. Each
// request runs in its own Session; the semaphore is the only cross-session
// serialization — at most cfg.Workers sessions hold an open generation
// stream at a time, waiters queue in arrival order.
type Manager struct {
	cfg          config.SynthesisConfig
	backendCfg   config.BackendConfig
	gen          backend.Generator
	decoders     audio.DecoderFactory
	slots        *semaphore.Weighted
	queueTimeout time.Duration
	pub          *bus.Client
	logger       *slog.Logger
	metrics      *pipelineMetrics
}

// Result is one buffered synthesis output.
type Result struct {
	WAV      []byte
	PCMBytes int
	Elapsed  time.Duration
}

func NewManager(cfg config.Config, gen backend.Generator, decoders audio.DecoderFactory, pub *bus.Client, logger *slog.Logger) (*Manager, error) {
	metrics, err := newPipelineMetrics()
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:          cfg.Synthesis,
		backendCfg:   cfg.Backend,
		gen:          gen,
		decoders:     decoders,
		slots:        semaphore.NewWeighted(int64(cfg.Synthesis.Workers)),
		queueTimeout: time.Duration(cfg.Synthesis.QueueTimeoutMS) * time.Millisecond,
		pub:          pub,
		logger:       logger.With(slog.String("component", "synth")),
		metrics:      metrics,
	}, nil
}

func (m *Manager) format() audio.Format {
	return audio.Format{SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels}
}

// Session is the lifecycle of one synthesis request.
type Session struct {
	ID      string
	m       *Manager
	state   stateTracker
	started bool
	logger  *slog.Logger
}

func (m *Manager) NewSession() *Session {
	id := uuid.NewString()
	return &Session{
		ID:     id,
		m:      m,
		logger: m.logger.With(slog.String("session_id", id)),
	}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return s.state.get() }

// Synthesize runs buffered mode: the whole unit sequence is consumed and
// returned as one complete WAV file.
func (s *Session) Synthesize(ctx context.Context, raw protocol.SynthesisRequest) (*Result, error) {
	start := time.Now()
	req, release, err := s.begin(ctx, raw)
	if err != nil {
		return nil, err
	}
	defer release()

	dec, err := s.m.decoders()
	if err != nil {
		return nil, s.abort(protocol.WrapError(protocol.KindBackendUnavailable, err, "start decoder"))
	}
	defer dec.Close()

	builder := audio.NewFileBuilder(s.m.format(), dec)
	err = s.m.gen.Generate(ctx, backend.NewRequest(s.ID, req, s.m.backendCfg.MaxUnits), func(u backend.Unit) error {
		if u.Index == 0 {
			s.state.set(StateAssembling)
		}
		return builder.Consume(u)
	})
	if err != nil {
		return nil, s.abort(err)
	}

	wav, err := builder.Bytes()
	if err != nil {
		return nil, s.abort(err)
	}

	s.complete(start, builder.PCMBytes())
	return &Result{WAV: wav, PCMBytes: builder.PCMBytes(), Elapsed: time.Since(start)}, nil
}

// Stream runs streaming mode: emit is called with the WAV header first,
// then with each frame-aligned chunk in generation order. Assembly starts
// on the first unit; a bounded channel between assembly and emission keeps
// memory flat under a slow consumer.
func (s *Session) Stream(ctx context.Context, raw protocol.SynthesisRequest, emit func([]byte) error) error {
	start := time.Now()
	req, release, err := s.begin(ctx, raw)
	if err != nil {
		return err
	}
	defer release()

	dec, err := s.m.decoders()
	if err != nil {
		return s.abort(protocol.WrapError(protocol.KindBackendUnavailable, err, "start decoder"))
	}
	defer dec.Close()

	if err := emit(audio.StreamHeader(s.m.format())); err != nil {
		return s.abort(err)
	}

	assembler := audio.NewStreamAssembler(s.m.format(), dec, s.m.cfg.ChunkDurationMS, s.m.cfg.ChunkBuffer)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer assembler.CloseSend()
		err := s.m.gen.Generate(gctx, backend.NewRequest(s.ID, req, s.m.backendCfg.MaxUnits), func(u backend.Unit) error {
			if u.Index == 0 {
				s.state.set(StateAssembling)
			}
			return assembler.Consume(gctx, u)
		})
		if err != nil {
			return err
		}
		return assembler.Flush(gctx)
	})

	pcmBytes := 0
	g.Go(func() error {
		sequence := 0
		for chunk := range assembler.Chunks() {
			if err := emit(chunk); err != nil {
				return err
			}
			pcmBytes += len(chunk)
			s.m.pub.PublishChunk(protocol.AudioChunk{
				SessionID:  s.ID,
				Sequence:   sequence,
				SampleRate: s.m.cfg.SampleRate,
				Channels:   s.m.cfg.Channels,
				PCM:        chunk,
			})
			sequence++
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return s.abort(err)
	}

	s.complete(start, pcmBytes)
	return nil
}

// begin validates the request and acquires a worker slot. The returned
// release function must be called exactly once; it frees the slot so no
// error path can leak a backend handle.
func (s *Session) begin(ctx context.Context, raw protocol.SynthesisRequest) (request.Request, func(), error) {
	s.state.set(StateValidating)
	req, err := request.Validate(raw, s.m.cfg)
	if err != nil {
		return request.Request{}, nil, s.abort(err)
	}

	acquireCtx := ctx
	if s.m.queueTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, s.m.queueTimeout)
		defer cancel()
	}
	if err := s.m.slots.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return request.Request{}, nil, s.abort(ctx.Err())
		}
		return request.Request{}, nil, s.abort(protocol.Errorf(protocol.KindBackendUnavailable, "no synthesis worker available"))
	}
	s.started = true
	s.state.set(StateGenerating)
	return req, func() { s.m.slots.Release(1) }, nil
}

func (s *Session) complete(start time.Time, pcmBytes int) {
	s.state.set(StateCompleted)
	elapsed := time.Since(start)
	s.m.metrics.observe(context.Background(), "completed", elapsed, pcmBytes)
	s.m.pub.PublishDone(s.ID, true)
	s.logger.Info("synthesis complete",
		slog.Duration("elapsed", elapsed),
		slog.Int("pcm_bytes", pcmBytes))
}

// abort classifies err, moves the session to its terminal state and
// records the outcome. Cancellation is not an error worth reporting to
// the caller beyond its kind; everything else keeps its classification.
func (s *Session) abort(err error) error {
	s.state.set(StateAborted)

	classified := err
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		classified = protocol.WrapError(protocol.KindSessionCancelled, err, "session cancelled")
	} else if _, ok := protocol.KindOf(err); !ok {
		classified = protocol.WrapError(protocol.KindBackendProtocolError, err, "synthesis failed")
	}

	kind, _ := protocol.KindOf(classified)
	s.m.metrics.observe(context.Background(), string(kind), 0, 0)
	if s.started {
		s.m.pub.PublishDone(s.ID, false)
	}
	if kind == protocol.KindSessionCancelled {
		s.logger.Info("session cancelled")
	} else {
		s.logger.Warn("session aborted", slog.String("kind", string(kind)), slog.String("error", classified.Error()))
	}
	return classified
}
