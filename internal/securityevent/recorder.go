// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sorae Contributors

// Package securityevent records authentication decision events to a durable
// sink. Failures are written synchronously so lockout evidence survives a
// crash; successes flow through a buffered channel.
package securityevent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/sorae/sorae/internal/auth"
)

var (
	eventsRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sorae_security_events_total",
		Help: "Total number of security events recorded by name and outcome",
	}, []string{"event", "outcome"})

	channelFull = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sorae_security_events_dropped_total",
		Help: "Total number of events dropped because the async channel was full",
	})

	writeFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sorae_security_event_write_failures_total",
		Help: "Total number of event sink write failures",
	}, []string{"reason"})
)

// Collectors returns the package metrics for registration into a registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{eventsRecorded, channelFull, writeFailures}
}

// Sink persists events. WriteSync is used for failure events; WriteAsync for
// the success path.
type Sink interface {
	WriteSync(ctx context.Context, event auth.Event) error
	WriteAsync(event auth.Event) error
	Close() error
}

// Recorder implements auth.EventRecorder over a Sink with an async buffer
// for success events.
type Recorder struct {
	sink      Sink
	logger    *slog.Logger
	asyncChan chan auth.Event
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// NewRecorder creates a Recorder and starts its consumer goroutine.
// bufferSize <= 0 falls back to a reasonable default.
func NewRecorder(sink Sink, logger *slog.Logger, bufferSize int) (*Recorder, error) {
	if sink == nil {
		return nil, oops.Code("EVENTS_INVALID_SINK").Errorf("sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &Recorder{
		sink:      sink,
		logger:    logger,
		asyncChan: make(chan auth.Event, bufferSize),
		stopChan:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.consume()

	return r, nil
}

// Record persists one event. Failure events are written synchronously so they
// are on disk before the denial is returned to the caller; success events are
// queued and dropped (with a metric) if the buffer is full.
func (r *Recorder) Record(ctx context.Context, event auth.Event) {
	eventsRecorded.WithLabelValues(event.Name, outcome(event.Success)).Inc()

	if !event.Success {
		if err := r.sink.WriteSync(ctx, event); err != nil {
			r.logger.Error("security event write failed",
				"event", event.Name,
				"account_id", event.AccountID,
				"error", err)
			writeFailures.WithLabelValues("sync_write_failed").Inc()
		}
		return
	}

	select {
	case r.asyncChan <- event:
	default:
		channelFull.Inc()
	}
}

// Close drains the async buffer and closes the sink. Safe to call more than
// once.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.stopChan)
		r.wg.Wait()
		r.closeErr = r.sink.Close()
	})
	return r.closeErr
}

func (r *Recorder) consume() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.asyncChan:
			r.write(event)
		case <-r.stopChan:
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case event := <-r.asyncChan:
			r.write(event)
		default:
			return
		}
	}
}

func (r *Recorder) write(event auth.Event) {
	if err := r.sink.WriteAsync(event); err != nil {
		r.logger.Error("async security event write failed",
			"event", event.Name,
			"account_id", event.AccountID,
			"error", err)
		writeFailures.WithLabelValues("async_write_failed").Inc()
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// FileSink appends events as JSON lines to a single file.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileSink opens (or creates) the event log at path in append mode.
func NewFileSink(path string) (*FileSink, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, oops.Code("EVENTS_OPEN_FAILED").With("path", path).Wrap(err)
	}
	return &FileSink{path: path, file: file}, nil
}

// WriteSync appends one event and syncs it to stable storage.
func (s *FileSink) WriteSync(_ context.Context, event auth.Event) error {
	if err := s.append(event); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Sync(); err != nil {
		return oops.Code("EVENTS_WRITE_FAILED").With("path", s.path).Wrap(err)
	}
	return nil
}

// WriteAsync appends one event without forcing a sync.
func (s *FileSink) WriteAsync(event auth.Event) error {
	return s.append(event)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return oops.Code("EVENTS_CLOSE_FAILED").With("path", s.path).Wrap(err)
	}
	return nil
}

func (s *FileSink) append(event auth.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return oops.Code("EVENTS_WRITE_FAILED").Wrap(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return oops.Code("EVENTS_WRITE_FAILED").Errorf("sink is closed")
	}
	if _, err := fmt.Fprintf(s.file, "%s\n", data); err != nil {
		return oops.Code("EVENTS_WRITE_FAILED").With("path", s.path).Wrap(err)
	}
	return nil
}
