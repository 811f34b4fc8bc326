package entity_test

import (
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"

	"webinyframework/src/entity"
	"webinyframework/src/test_artefacts/memstore"
	"webinyframework/src/test_artefacts/stubs"
)

var _ = Describe("Collection", func() {
	var (
		manager *entity.Manager
		store   *memstore.Store
		ctx     context.Context
		books   []*entity.Entity
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, store = newManager()

		books = nil
		for i := 1; i <= 5; i++ {
			book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().WithTitle(fmt.Sprintf("Book %d", i)).With("pages", i*100).Get())
			Expect(book.Save(ctx)).To(Succeed())
			books = append(books, book)
		}
	})

	It("runs its query on first access only", func() {
		collection, err := manager.Find(stubs.BookClass, bson.M{}, entity.FindOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Calls("find")).To(Equal(0))

		Expect(collection.Count(ctx)).To(Equal(5))
		Expect(collection.Count(ctx)).To(Equal(5))

		Expect(store.Calls("find")).To(Equal(1))
	})

	It("counts beyond limit and skip", func() {
		collection, err := manager.Find(stubs.BookClass, bson.M{}, entity.FindOptions{Sort: entity.ParseSort("title"), Limit: 2, Skip: 1})
		Expect(err).NotTo(HaveOccurred())

		titles, err := collection.Map(ctx, func(e *entity.Entity) (any, error) { return e.Get("title"), nil })

		Expect(err).NotTo(HaveOccurred())
		Expect(titles).To(Equal([]any{"Book 2", "Book 3"}))
		Expect(collection.TotalCount(ctx)).To(Equal(int64(5)))
	})

	It("normalizes documents into the pooled instances", func() {
		collection, err := manager.Find(stubs.BookClass, bson.M{"title": "Book 3"}, entity.FindOptions{})
		Expect(err).NotTo(HaveOccurred())

		found, err := collection.At(ctx, 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeIdenticalTo(books[2]))
		_, err = collection.At(ctx, 1)
		Expect(err).To(HaveOccurred())
	})

	It("filters, iterates and answers membership", func() {
		collection, err := manager.Find(stubs.BookClass, bson.M{"pages": bson.M{"$gte": 300}}, entity.FindOptions{Sort: entity.ParseSort("pages")})
		Expect(err).NotTo(HaveOccurred())

		long, err := collection.Filter(ctx, func(e *entity.Entity) bool { return e.Get("pages").(int64) > 400 })
		Expect(err).NotTo(HaveOccurred())
		Expect(long.Count(ctx)).To(Equal(1))

		var visited []string
		Expect(collection.Each(ctx, func(e *entity.Entity) error {
			visited = append(visited, e.ID())
			return nil
		})).To(Succeed())
		Expect(visited).To(Equal([]string{books[2].ID(), books[3].ID(), books[4].ID()}))

		Expect(collection.Contains(ctx, books[3])).To(BeTrue())
		Expect(collection.Contains(ctx, books[0].ID())).To(BeFalse())
	})

	It("stops iterating on the first error", func() {
		collection, err := manager.Find(stubs.BookClass, bson.M{}, entity.FindOptions{})
		Expect(err).NotTo(HaveOccurred())

		calls := 0
		err = collection.Each(ctx, func(e *entity.Entity) error {
			calls++
			return fmt.Errorf("stop")
		})

		Expect(err).To(MatchError("stop"))
		Expect(calls).To(Equal(1))
	})

	It("loads id items on access", func() {
		manager.Pool().Reset()
		collection := entity.NewCollection(manager, stubs.BookClass, books[0].ID(), books[1].ID())

		all, err := collection.All(ctx)

		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
		Expect(all[1].Get("title")).To(Equal("Book 2"))
	})

	It("deletes every entity", func() {
		collection, err := manager.Find(stubs.BookClass, bson.M{"pages": bson.M{"$lt": 300}}, entity.FindOptions{})
		Expect(err).NotTo(HaveOccurred())

		Expect(collection.Delete(ctx)).To(Succeed())

		Expect(store.Documents("books")).To(HaveLen(3))
	})

	It("surfaces storage failures", func() {
		store.FailOn("find", fmt.Errorf("timeout"))
		collection, err := manager.Find(stubs.BookClass, bson.M{}, entity.FindOptions{})
		Expect(err).NotTo(HaveOccurred())

		_, err = collection.Count(ctx)

		Expect(err).To(MatchError(ContainSubstring("timeout")))
	})
})
