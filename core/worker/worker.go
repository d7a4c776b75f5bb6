// Package worker consumes watermark requests from the bus and publishes
// dispatch results.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/cordum/zipmark/core/dispatch"
	"github.com/cordum/zipmark/core/infra/bus"
	"github.com/cordum/zipmark/core/infra/locks"
	"github.com/cordum/zipmark/core/infra/logging"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	logComponent   = "worker"
	requestTimeout = 2 * time.Minute
	busyRetryDelay = 2 * time.Second
)

// Bus is the subset of the NATS bus the worker uses.
type Bus interface {
	Publish(subject string, payload *structpb.Struct) error
	Subscribe(subject, queue string, handler func(*structpb.Struct) error) error
	IsConnected() bool
}

// Dispatcher turns requests into results.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) (dispatch.Result, error)
}

// Worker wires a dispatcher to the request subject.
type Worker struct {
	bus        Bus
	dispatcher Dispatcher
	timeout    time.Duration
	now        func() time.Time
}

func New(b Bus, d Dispatcher) *Worker {
	return &Worker{bus: b, dispatcher: d, timeout: requestTimeout, now: time.Now}
}

// Start subscribes to zipmark.request in the shared worker queue group.
func (w *Worker) Start() error {
	return w.bus.Subscribe(bus.SubjectRequest, bus.QueueWorkers, w.handle)
}

func (w *Worker) handle(payload *structpb.Struct) error {
	req, err := DecodeRequest(payload)
	if err != nil {
		// Malformed requests are acked and dropped.
		logging.Error(logComponent, "bad request payload", "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	res, err := w.dispatcher.Dispatch(ctx, req)
	if err != nil && errors.Is(err, locks.ErrBusy) {
		logging.Warn(logComponent, "customer busy, retrying", "request_id", req.RequestID, "customer_id", req.CustomerID)
		return bus.RetryAfterOr(err, busyRetryDelay, func() error {
			logging.Warn(logComponent, "customer still busy, serving source", "request_id", req.RequestID, "customer_id", req.CustomerID)
			return w.publish(req.RequestID, res)
		})
	}
	if err != nil {
		logging.Warn(logComponent, "dispatch error, serving source", "request_id", req.RequestID, "error", err)
	}
	return w.publish(req.RequestID, res)
}

func (w *Worker) publish(requestID string, res dispatch.Result) error {
	out, err := EncodeResult(res, w.now())
	if err != nil {
		return err
	}
	if err := w.bus.Publish(bus.SubjectResult, out); err != nil {
		logging.Error(logComponent, "publish result", "request_id", requestID, "error", err)
		return err
	}
	return nil
}
