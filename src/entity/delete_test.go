package entity_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/entity"
	"webinyframework/src/test_artefacts/memstore"
	"webinyframework/src/test_artefacts/stubs"
)

var _ = Describe("Delete", func() {
	var (
		manager *entity.Manager
		store   *memstore.Store
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, store = newManager()
	})

	It("refuses entities that were never saved", func() {
		book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())

		err := manager.Delete(ctx, book)

		Expect(err).To(MatchError(entity.ErrNotPersisted))
	})

	Context("when one2many children cascade", func() {
		It("removes the children, their links and the parent", func() {
			// ARRANGE
			author := newEntity(manager, stubs.AuthorClass, stubs.NewAuthorStub().Get())
			Expect(author.Set("books", []any{
				stubs.NewBookStub().With("tags", []any{stubs.NewTagStub()}).Get(),
				stubs.NewBookStub().Get(),
			})).To(Succeed())
			Expect(author.Save(ctx)).To(Succeed())
			Expect(store.Documents("books2tags")).To(HaveLen(1))
			authorID := author.ID()

			// ACT
			err := author.Delete(ctx)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Documents("authors")).To(BeEmpty())
			Expect(store.Documents("books")).To(BeEmpty())
			Expect(store.Documents("books2tags")).To(BeEmpty())
			Expect(store.Documents("tags")).To(HaveLen(1))
			Expect(author.Exists()).To(BeFalse())
			_, pooled := manager.Pool().Get(stubs.AuthorClass, authorID)
			Expect(pooled).To(BeFalse())
		})
	})

	Context("when one2many children restrict", func() {
		var book *entity.Entity

		BeforeEach(func() {
			author := newEntity(manager, stubs.AuthorClass, stubs.NewAuthorStub().Get())
			book = newEntity(manager, stubs.BookClass, stubs.NewBookStub().WithAuthor(author).Get())
			Expect(book.Set("reviews", []any{map[string]any{"text": "great", "rating": 5}})).To(Succeed())
			Expect(book.Save(ctx)).To(Succeed())
		})

		It("refuses to delete the parent", func() {
			err := book.Delete(ctx)

			Expect(err).To(MatchError(entity.ErrDeleteRestricted))
			Expect(store.Documents("books")).To(HaveLen(1))
			Expect(store.Documents("reviews")).To(HaveLen(1))
		})

		It("checks the whole plan before removing anything", func() {
			author, err := book.GetEntity(ctx, "author")
			Expect(err).NotTo(HaveOccurred())

			err = author.Delete(ctx)

			Expect(err).To(MatchError(entity.ErrDeleteRestricted))
			Expect(store.Documents("authors")).To(HaveLen(1))
			Expect(store.Documents("books")).To(HaveLen(1))
			Expect(store.Calls("delete")).To(Equal(0))
		})

		It("allows the delete once the children are gone", func() {
			reviews, err := manager.Find(stubs.ReviewClass, map[string]any{"book": book.ID()}, entity.FindOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(reviews.Delete(ctx)).To(Succeed())

			Expect(book.Delete(ctx)).To(Succeed())
			Expect(store.Documents("books")).To(BeEmpty())
		})
	})

	Context("when one2many children are ignored", func() {
		It("keeps the children", func() {
			shelf := newEntity(manager, stubs.ShelfClass, map[string]any{"label": "top"})
			Expect(shelf.Set("items", []any{map[string]any{"label": "one"}})).To(Succeed())
			Expect(shelf.Save(ctx)).To(Succeed())

			Expect(shelf.Delete(ctx)).To(Succeed())

			Expect(store.Documents("shelves")).To(BeEmpty())
			Expect(store.Documents("shelf_items")).To(HaveLen(1))
		})
	})

	Context("when a many2many attribute has no reciprocal", func() {
		It("refuses the delete", func() {
			note := newEntity(manager, stubs.NoteClass, map[string]any{"text": "todo"})
			Expect(note.Set("tags", []any{stubs.NewTagStub()})).To(Succeed())
			Expect(note.Save(ctx)).To(Succeed())

			err := note.Delete(ctx)

			Expect(err).To(MatchError(entity.ErrMissingReciprocal))
			Expect(store.Documents("notes")).To(HaveLen(1))
			Expect(store.Documents("notes2tags")).To(HaveLen(1))
		})
	})
})
