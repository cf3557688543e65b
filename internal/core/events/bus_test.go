package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/frahmantamala/document-management/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("delivers asynchronously to every subscriber", func() {
		var calls int32
		for i := 0; i < 3; i++ {
			bus.Subscribe(events.EventTypeTaskSucceeded, func(ctx context.Context, e events.Event) error {
				atomic.AddInt32(&calls, 1)
				return nil
			})
		}

		Expect(bus.Publish(context.Background(), events.NewTaskEvent(events.EventTypeTaskSucceeded, "t1", "users.export_xlsx", time.Second, nil))).To(Succeed())
		bus.Wait()
		Expect(atomic.LoadInt32(&calls)).To(Equal(int32(3)))
	})

	It("keeps delivering after the publisher's context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		var seen error
		bus.Subscribe(events.EventTypeTaskFailed, func(ctx context.Context, e events.Event) error {
			seen = ctx.Err()
			return nil
		})
		Expect(bus.Publish(ctx, events.NewTaskEvent(events.EventTypeTaskFailed, "t1", "x", 0, errors.New("boom")))).To(Succeed())
		cancel()
		bus.Wait()
		Expect(seen).NotTo(HaveOccurred())
	})

	It("returns handler errors when publishing synchronously", func() {
		bus.Subscribe(events.EventTypeTaskStarted, func(ctx context.Context, e events.Event) error {
			return errors.New("nope")
		})
		err := bus.PublishSync(context.Background(), events.NewTaskEvent(events.EventTypeTaskStarted, "t1", "x", 0, nil))
		Expect(err).To(MatchError(ContainSubstring("nope")))
	})

	It("carries the task fields", func() {
		e := events.NewTaskEvent(events.EventTypeTaskFailed, "t9", "mail.send", time.Millisecond, errors.New("smtp down"))
		Expect(e.EventType()).To(Equal("task.failed"))
		Expect(e.Error).To(Equal("smtp down"))
		Expect(e.Payload()).To(HaveKeyWithValue("task_id", "t9"))
	})
})
