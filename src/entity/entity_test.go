package entity_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/entity"
	"webinyframework/src/test_artefacts/stubs"
)

var _ = Describe("Entity", func() {
	var (
		manager *entity.Manager
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, _ = newManager()
	})

	Context("when populating from input", func() {
		It("collects every failure into one validation error", func() {
			// ARRANGE
			book, err := manager.New(stubs.BookClass)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			err = book.Populate(map[string]any{"pages": "many", "genre": "poetry", "price": 12.5})

			// ASSERT
			var validation *entity.ValidationError
			Expect(errors.As(err, &validation)).To(BeTrue())
			Expect(err).To(MatchError(entity.ErrValidation))
			Expect(validation.Class).To(Equal(stubs.BookClass))
			Expect(validation.Errors).To(HaveLen(3))
			Expect(validation.Errors).To(HaveKeyWithValue("title", "value is required"))
			Expect(validation.Errors).To(HaveKey("pages"))
			Expect(validation.Errors).To(HaveKey("genre"))
			Expect(book.Get("price")).To(Equal(12.5))
		})

		It("ignores the id and skip-on-populate attributes", func() {
			book := newEntity(manager, stubs.BookClass, map[string]any{
				"id":                      "5f1d7f3e8f1b2c3d4e5f6a7b",
				"title":                   "Dune",
				entity.CreatedOnAttribute: "2020-01-01T00:00:00Z",
			})

			Expect(book.ID()).To(BeEmpty())
			Expect(book.Exists()).To(BeFalse())
			Expect(book.Get(entity.CreatedOnAttribute)).To(BeNil())
		})

		It("leaves once attributes of persisted entities untouched", func() {
			book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().With("isbn", "111").Get())
			Expect(book.Save(ctx)).To(Succeed())

			err := book.Populate(map[string]any{"isbn": "222", "title": "Renamed"})

			Expect(err).NotTo(HaveOccurred())
			Expect(book.Get("isbn")).To(Equal("111"))
			Expect(book.Get("title")).To(Equal("Renamed"))
		})

		It("does not require missing values on persisted entities", func() {
			book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())
			Expect(book.Save(ctx)).To(Succeed())

			Expect(book.Populate(map[string]any{"pages": 10})).To(Succeed())
		})

		It("reports required values cleared by the input", func() {
			book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())
			Expect(book.Save(ctx)).To(Succeed())

			err := book.Populate(map[string]any{"title": nil})

			Expect(err).To(MatchError(entity.ErrValidation))
		})
	})

	Context("when accessing attributes", func() {
		It("refuses to change the id", func() {
			book, err := manager.New(stubs.BookClass)
			Expect(err).NotTo(HaveOccurred())

			Expect(book.Set("id", "5f1d7f3e8f1b2c3d4e5f6a7b")).To(MatchError(entity.ErrImmutableID))
			Expect(book.Set("missing", 1)).To(MatchError(entity.ErrUnknownAttribute))
			Expect(book.Get("missing")).To(BeNil())
		})

		It("lists attributes in declaration order", func() {
			author, err := manager.New(stubs.AuthorClass)
			Expect(err).NotTo(HaveOccurred())

			var names []string
			for _, attribute := range author.Attributes() {
				names = append(names, attribute.Name())
			}

			Expect(names).To(Equal([]string{"name", "email", "born", "books"}))
		})

		It("applies default values to new entities", func() {
			book, err := manager.New(stubs.BookClass)
			Expect(err).NotTo(HaveOccurred())

			Expect(book.Get("published")).To(BeFalse())
		})

		It("only returns relations through the relation accessors", func() {
			book, err := manager.New(stubs.BookClass)
			Expect(err).NotTo(HaveOccurred())

			_, err = book.GetEntity(ctx, "title")
			Expect(err).To(MatchError(entity.ErrUnknownAttribute))
			_, err = book.GetCollection("author")
			Expect(err).To(MatchError(entity.ErrUnknownAttribute))
		})
	})

	Context("when converting to a document", func() {
		It("includes the stored attributes and the ObjectID", func() {
			book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().WithTitle("Dune").Get())
			Expect(book.Save(ctx)).To(Succeed())

			document, err := book.ToDB()

			Expect(err).NotTo(HaveOccurred())
			Expect(document["_id"]).To(Equal(mustObjectID(book.ID())))
			Expect(document["title"]).To(Equal("Dune"))
			Expect(document).To(HaveKey("author"))
			Expect(document).NotTo(HaveKey("summary"))
			Expect(document).NotTo(HaveKey("reviews"))
		})

		It("refuses references to unsaved entities", func() {
			author := newEntity(manager, stubs.AuthorClass, stubs.NewAuthorStub().Get())
			book := newEntity(manager, stubs.BookClass, stubs.NewBookStub().WithAuthor(author).Get())

			_, err := book.ToDB()

			Expect(err).To(MatchError(entity.ErrNotPersisted))
		})
	})
})
