package entity_test

import (
	"context"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"

	"webinyframework/src/entity"
	"webinyframework/src/test_artefacts/comparer"
	"webinyframework/src/test_artefacts/stubs"
)

var _ = Describe("DataExtractor", func() {
	var (
		manager *entity.Manager
		ctx     context.Context
		author  *entity.Entity
		book    *entity.Entity
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, _ = newManager()

		author = newEntity(manager, stubs.AuthorClass, map[string]any{"name": "Frank Herbert", "born": "1920-10-08"})
		book = newEntity(manager, stubs.BookClass, map[string]any{
			"title":  "Dune",
			"pages":  412,
			"author": author,
			"tags":   []any{map[string]any{"name": "classic"}},
		})
		Expect(book.Save(ctx)).To(Succeed())
	})

	It("extracts every attribute and expands relations one level deep", func() {
		// ACT
		data, err := book.ToArray(ctx, "", entity.DefaultDepth)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(data["id"]).To(Equal(book.ID()))
		Expect(data["summary"]).To(Equal("Dune (412 pages)"))
		Expect(data["reviews"]).To(BeEmpty())

		expectedAuthor := map[string]any{
			"id":    author.ID(),
			"name":  "Frank Herbert",
			"email": nil,
			"born":  "1920-10-08",
			"books": []string{book.ID()},
		}
		Expect(cmp.Diff(expectedAuthor, data["author"])).To(BeEmpty())

		tags := data["tags"].([]map[string]any)
		Expect(tags).To(HaveLen(1))
		Expect(tags[0]["name"]).To(Equal("classic"))
		Expect(tags[0]["books"]).To(Equal([]string{book.ID()}))
	})

	It("renders relations as ids at depth zero", func() {
		data, err := book.ToArray(ctx, "*", 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(data["author"]).To(Equal(author.ID()))
		Expect(data["tags"]).To(HaveLen(1))
		Expect(data["tags"].([]string)[0]).To(HaveLen(24))
	})

	It("returns only the selected fields", func() {
		data, err := book.ToArray(ctx, "title,author.name", entity.DefaultDepth)

		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(map[string]any{
			"id":     book.ID(),
			"title":  "Dune",
			"author": map[string]any{"id": author.ID(), "name": "Frank Herbert"},
		}, data)).To(BeEmpty())
	})

	It("always expands explicit sub-fields", func() {
		data, err := book.ToArray(ctx, "tags.name", 0)

		Expect(err).NotTo(HaveOccurred())
		Expect(data["tags"]).To(Equal([]map[string]any{{"id": data["tags"].([]map[string]any)[0]["id"], "name": "classic"}}))
	})

	It("never expands beyond MaxDepth", func() {
		capped, err := book.ToArray(ctx, "*", entity.MaxDepth)
		Expect(err).NotTo(HaveOccurred())

		data, err := book.ToArray(ctx, "*", 50)

		Expect(err).NotTo(HaveOccurred())
		Expect(cmp.Diff(capped, data)).To(BeEmpty())
	})

	It("renders fields nested beyond MaxDepth as ids", func() {
		fields := "author.books.author.books.author.books.title"
		Expect(entity.FieldsDepth(fields)).To(Equal(6))

		data, err := book.ToArray(ctx, fields, 0)

		Expect(err).NotTo(HaveOccurred())
		level1 := data["author"].(map[string]any)["books"].([]map[string]any)[0]
		level3 := level1["author"].(map[string]any)["books"].([]map[string]any)[0]
		Expect(level3["author"].(map[string]any)["books"]).To(Equal([]string{book.ID()}))
	})

	It("extracts collections", func() {
		other := newEntity(manager, stubs.BookClass, stubs.NewBookStub().WithTitle("Emma").Get())
		Expect(other.Save(ctx)).To(Succeed())
		books, err := manager.Find(stubs.BookClass, bson.M{}, entity.FindOptions{Sort: entity.ParseSort("title")})
		Expect(err).NotTo(HaveOccurred())

		data, err := books.ToArray(ctx, "title,createdOn", entity.DefaultDepth)

		Expect(err).NotTo(HaveOccurred())
		Expect(data).To(HaveLen(2))
		Expect(cmp.Diff(map[string]any{"id": other.ID(), "title": "Emma"}, data[1], comparer.IgnoreKeys("createdOn"))).To(BeEmpty())
		Expect(data[1]["createdOn"]).To(MatchRegexp(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`))
	})
})
