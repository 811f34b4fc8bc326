package entity_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/entity"
	"webinyframework/src/test_artefacts/stubs"
)

var _ = Describe("Pool", func() {
	var (
		manager *entity.Manager
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, _ = newManager()
	})

	It("registers saved entities and ignores new ones", func() {
		pool := entity.NewPool()
		book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())

		Expect(pool.Add(book)).To(BeIdenticalTo(book))
		Expect(pool.Len()).To(Equal(0))

		Expect(book.Save(ctx)).To(Succeed())
		pool.Add(book)

		found, ok := pool.Get(stubs.BookClass, book.ID())
		Expect(ok).To(BeTrue())
		Expect(found).To(BeIdenticalTo(book))
	})

	It("keeps the first instance for a class and id", func() {
		book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())
		Expect(book.Save(ctx)).To(Succeed())
		manager.Pool().Reset()

		loaded, err := manager.FindByID(ctx, stubs.BookClass, book.ID())
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.Pool().Add(book)).To(BeIdenticalTo(loaded))
		Expect(manager.Pool().Len()).To(Equal(1))
	})

	It("forgets removed entities", func() {
		book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())
		Expect(book.Save(ctx)).To(Succeed())

		manager.Pool().Remove(book)

		_, ok := manager.Pool().Get(stubs.BookClass, book.ID())
		Expect(ok).To(BeFalse())
	})

	It("gives every session its own pool", func() {
		// ARRANGE
		book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())
		Expect(book.Save(ctx)).To(Succeed())

		// ACT
		session := manager.Session()
		loaded, err := session.FindByID(ctx, stubs.BookClass, book.ID())

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).NotTo(BeIdenticalTo(book))
		Expect(loaded.Get("title")).To(Equal(book.Get("title")))
		Expect(session.ClassNames()).To(Equal(manager.ClassNames()))
		Expect(manager.Pool().Len()).To(Equal(1))
		Expect(session.Pool().Len()).To(Equal(1))
	})
})
