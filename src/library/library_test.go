package library_test

import (
	"context"
	"errors"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/entity"
	"webinyframework/src/library"
	"webinyframework/src/test_artefacts/comparer"
	"webinyframework/src/test_artefacts/memstore"
)

var _ = Describe("Library", func() {
	var (
		ctx     context.Context
		manager *entity.Manager
		store   *memstore.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, store = newManager()
	})

	newBook := func(data map[string]any) *entity.Entity {
		book, err := manager.New(library.BookClass)
		Expect(err).NotTo(HaveOccurred())
		Expect(book.Populate(data)).To(Succeed())
		return book
	}

	It("registers the catalogue classes", func() {
		Expect(manager.ClassNames()).To(ConsistOf(library.AuthorClass, library.BookClass, library.TagClass, library.ReviewClass))
	})

	It("saves a book together with its author, tags and reviews", func() {
		// ARRANGE
		book := newBook(map[string]any{
			"title":       "The Left Hand of Darkness",
			"pages":       int64(304),
			"genre":       "fiction",
			"publishedOn": "1969-03-01",
			"author":      map[string]any{"name": "Ursula K. Le Guin", "country": "US"},
			"tags":        []any{map[string]any{"name": "classic"}, map[string]any{"name": "hugo"}},
			"reviews":     []any{map[string]any{"reviewer": "Ann", "rating": int64(5)}},
		})

		// ACT
		err := book.Save(ctx)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Documents("authors")).To(HaveLen(1))
		Expect(store.Documents("tags")).To(HaveLen(2))
		Expect(store.Documents("books2tags")).To(HaveLen(2))
		Expect(store.Documents("reviews")).To(HaveLen(1))
		Expect(store.Documents("reviews")[0]["book"]).To(Equal(book.ID()))
		Expect(book.Get("available")).To(BeTrue())
		Expect(cmp.Diff(time.Date(1969, 3, 1, 15, 0, 0, 0, time.UTC), book.Get("publishedOn"), comparer.SameDay())).To(BeEmpty())

		data, err := book.ToArray(ctx, "title,slug,author.name", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(HaveKeyWithValue("slug", "the-left-hand-of-darkness"))
		Expect(data["author"]).To(HaveKeyWithValue("name", "Ursula K. Le Guin"))
	})

	It("removes books and their reviews with the author", func() {
		// ARRANGE
		book := newBook(map[string]any{
			"title":   "Frankenstein",
			"author":  map[string]any{"name": "Mary Shelley"},
			"tags":    []any{map[string]any{"name": "gothic"}},
			"reviews": []any{map[string]any{"reviewer": "Bo", "rating": int64(4)}},
		})
		Expect(book.Save(ctx)).To(Succeed())
		author, err := book.GetEntity(ctx, "author")
		Expect(err).NotTo(HaveOccurred())

		// ACT
		err = author.Delete(ctx)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Documents("authors")).To(BeEmpty())
		Expect(store.Documents("books")).To(BeEmpty())
		Expect(store.Documents("reviews")).To(BeEmpty())
		Expect(store.Documents("books2tags")).To(BeEmpty())
		Expect(store.Documents("tags")).To(HaveLen(1))
	})

	It("rejects invalid catalogue data", func() {
		// ARRANGE
		review, err := manager.New(library.ReviewClass)
		Expect(err).NotTo(HaveOccurred())

		// ACT
		err = review.Populate(map[string]any{"rating": int64(9), "text": "great"})

		// ASSERT
		var validation *entity.ValidationError
		Expect(errors.As(err, &validation)).To(BeTrue())
		Expect(validation.Errors).To(HaveKey("rating"))
		Expect(validation.Errors).To(HaveKey("reviewer"))
		Expect(validation.Errors).NotTo(HaveKey("text"))
	})

	DescribeTable("Slug",
		func(title, expected string) {
			Expect(library.Slug(title)).To(Equal(expected))
		},
		Entry("plain title", "Dune", "dune"),
		Entry("punctuation", "Dune: Messiah!", "dune-messiah"),
		Entry("digits", "2001: A Space Odyssey", "2001-a-space-odyssey"),
		Entry("empty", "", ""),
	)
})
