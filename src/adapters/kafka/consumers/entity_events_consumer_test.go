package consumers_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/adapters/kafka/consumers"
	"webinyframework/src/entity"
	"webinyframework/src/infra/kafka"
	"webinyframework/src/rest"
	"webinyframework/src/services/events"
)

type recordingInvalidator struct {
	calls [][]string
	err   error
}

func (r *recordingInvalidator) InvalidateTags(_ context.Context, tags ...string) error {
	r.calls = append(r.calls, tags)
	return r.err
}

func eventMessage(eventType entity.EventType, class, id string) kafka.Message {
	message := events.EntityEventMessage{EventID: id + "-event", Type: eventType, Class: class, ID: id, OccurredAt: time.Now()}
	value, err := json.Marshal(message)
	Expect(err).NotTo(HaveOccurred())
	return kafka.Message{Key: message.MessageKey(), Value: value, Headers: message.Headers()}
}

var _ = Describe("EntityEventsConsumer", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("invalidates every changed class once", func() {
		// ARRANGE
		invalidator := &recordingInvalidator{}
		consumer := consumers.NewEntityEventsConsumer(newLogger(), invalidator)

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{
			eventMessage(entity.EventCreated, "Book", "1"),
			eventMessage(entity.EventUpdated, "Author", "2"),
			eventMessage(entity.EventDeleted, "Book", "3"),
		})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(invalidator.calls).To(Equal([][]string{{"Book", "Author"}}))
	})

	It("drops cached responses of the changed class", func() {
		// ARRANGE
		cache := rest.NewMemoryCache()
		Expect(cache.Set(ctx, "books", []byte("[]"), time.Minute, []string{"Book"})).To(Succeed())
		consumer := consumers.NewEntityEventsConsumer(newLogger(), cache)

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{eventMessage(entity.EventCreated, "Book", "1")})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(cache.Len()).To(BeZero())
	})

	It("skips messages it can not decode", func() {
		// ARRANGE
		invalidator := &recordingInvalidator{}
		consumer := consumers.NewEntityEventsConsumer(newLogger(), invalidator)

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{
			{Key: "broken", Value: []byte("{not json")},
			{Key: "anonymous", Value: []byte(`{"eventId":"x","type":"created"}`)},
			eventMessage(entity.EventCreated, "Tag", "4"),
		})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(invalidator.calls).To(Equal([][]string{{"Tag"}}))
	})

	It("does nothing for a batch without usable events", func() {
		invalidator := &recordingInvalidator{}
		consumer := consumers.NewEntityEventsConsumer(newLogger(), invalidator)

		Expect(consumer.HandleMessages(ctx, []kafka.Message{{Value: []byte("null")}})).To(Succeed())
		Expect(invalidator.calls).To(BeEmpty())
	})

	It("fails the batch when the cache is unavailable", func() {
		// ARRANGE
		invalidator := &recordingInvalidator{err: errors.New("redis down")}
		consumer := consumers.NewEntityEventsConsumer(newLogger(), invalidator)

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{eventMessage(entity.EventCreated, "Book", "1")})

		// ASSERT
		Expect(err).To(MatchError(ContainSubstring("redis down")))
	})
})
