package entity_test

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.mongodb.org/mongo-driver/bson"

	"webinyframework/src/entity"
	"webinyframework/src/test_artefacts/stubs"
)

var _ = Describe("Attributes", func() {
	var (
		manager *entity.Manager
		book    *entity.Entity
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		manager, _ = newManager()

		var err error
		book, err = manager.New(stubs.BookClass)
		Expect(err).NotTo(HaveOccurred())
	})

	Context("when converting scalar values", func() {
		It("keeps strings and rejects other types for char attributes", func() {
			Expect(book.Set("title", "Dune")).To(Succeed())
			Expect(book.Get("title")).To(Equal("Dune"))

			err := book.Set("title", 42)
			Expect(err).To(MatchError(entity.ErrInvalidValue))
		})

		It("converts json numbers and numeric strings to int64", func() {
			Expect(book.Set("pages", json.Number("412"))).To(Succeed())
			Expect(book.Get("pages")).To(Equal(int64(412)))

			Expect(book.Set("pages", "120")).To(Succeed())
			Expect(book.Get("pages")).To(Equal(int64(120)))

			Expect(book.Set("pages", 1.5)).To(MatchError(entity.ErrInvalidValue))
		})

		It("rejects whole floats outside the int64 range", func() {
			err := book.Set("pages", 1e19)

			Expect(err).To(MatchError(entity.ErrInvalidValue))
			Expect(err.Error()).To(ContainSubstring("expected integer"))
			Expect(book.Set("pages", float64(1<<62))).To(Succeed())
			Expect(book.Get("pages")).To(Equal(int64(1 << 62)))
		})

		It("runs validator tags on set", func() {
			err := book.Set("pages", -1)

			Expect(err).To(MatchError(entity.ErrInvalidValue))
			Expect(err.Error()).To(ContainSubstring("failed on gte=0"))
		})

		It("converts floats", func() {
			Expect(book.Set("price", json.Number("9.5"))).To(Succeed())
			Expect(book.Get("price")).To(Equal(9.5))

			Expect(book.Set("price", 3)).To(Succeed())
			Expect(book.Get("price")).To(Equal(3.0))
		})

		It("accepts booleans, boolean strings and 0/1", func() {
			Expect(book.Set("published", "true")).To(Succeed())
			Expect(book.Get("published")).To(BeTrue())

			Expect(book.Set("published", 0)).To(Succeed())
			Expect(book.Get("published")).To(BeFalse())

			Expect(book.Set("published", "1")).To(Succeed())
			Expect(book.Get("published")).To(BeTrue())

			Expect(book.Set("published", "maybe")).To(MatchError(entity.ErrInvalidValue))
		})

		It("restricts select attributes to their options", func() {
			Expect(book.Set("genre", "science")).To(Succeed())
			Expect(book.Set("genre", "poetry")).To(MatchError(entity.ErrInvalidValue))
			Expect(book.Get("genre")).To(Equal("science"))
		})

		It("turns slices into arrays and maps into objects", func() {
			Expect(book.Set("keywords", []string{"space", "sand"})).To(Succeed())
			Expect(book.Get("keywords")).To(Equal([]any{"space", "sand"}))
			Expect(book.Set("keywords", "space")).To(MatchError(entity.ErrInvalidValue))

			Expect(book.Set("meta", bson.M{"edition": 2})).To(Succeed())
			Expect(book.Get("meta")).To(Equal(map[string]any{"edition": 2}))
		})
	})

	Context("when handling dates", func() {
		It("stores dates as UTC midnight and renders them as yyyy-mm-dd", func() {
			author, err := manager.New(stubs.AuthorClass)
			Expect(err).NotTo(HaveOccurred())

			Expect(author.Set("born", time.Date(1920, 1, 2, 17, 30, 0, 0, time.UTC))).To(Succeed())

			Expect(author.Get("born")).To(BeTemporally("==", time.Date(1920, 1, 2, 0, 0, 0, 0, time.UTC)))
			Expect(author.Attr("born").ToArray()).To(Equal("1920-01-02"))

			Expect(author.Set("born", "1920-13-40")).To(MatchError(entity.ErrInvalidValue))
		})

		It("normalizes date-times to UTC and renders them as RFC3339", func() {
			Expect(book.Set("releasedOn", "2024-03-01T10:20:30+02:00")).To(Succeed())

			Expect(book.Get("releasedOn")).To(BeTemporally("==", time.Date(2024, 3, 1, 8, 20, 30, 0, time.UTC)))
			Expect(book.Attr("releasedOn").ToArray()).To(Equal("2024-03-01T08:20:30Z"))
		})
	})

	Context("when handling geo points", func() {
		It("accepts lat/lng objects and stores GeoJSON", func() {
			Expect(book.Set("location", map[string]any{"lat": 45.81, "lng": 15.98})).To(Succeed())

			Expect(book.Get("location")).To(Equal(entity.GeoPoint{Lat: 45.81, Lng: 15.98}))

			stored, err := book.Attr("location").ToDB()
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(Equal(bson.M{"type": "Point", "coordinates": []any{15.98, 45.81}}))
			Expect(book.Attr("location").ToArray()).To(Equal(map[string]any{"lat": 45.81, "lng": 15.98}))
		})

		It("reads GeoJSON back from the database", func() {
			err := book.Attr("location").FromDB(bson.M{"type": "Point", "coordinates": []any{15.98, 45.81}})

			Expect(err).NotTo(HaveOccurred())
			Expect(book.Get("location")).To(Equal(entity.GeoPoint{Lat: 45.81, Lng: 15.98}))
		})

		It("rejects coordinates out of range", func() {
			err := book.Set("location", entity.GeoPoint{Lat: 91, Lng: 0})

			Expect(err).To(MatchError(entity.ErrInvalidValue))
		})
	})

	Context("when using dynamic attributes", func() {
		It("computes the value from the entity and refuses writes", func() {
			Expect(book.Populate(map[string]any{"title": "Dune", "pages": 412})).To(Succeed())

			Expect(book.Get("summary")).To(Equal("Dune (412 pages)"))
			Expect(book.Set("summary", "x")).To(MatchError(entity.ErrReadOnlyAttribute))
			Expect(book.Attr("summary").StoresToDB()).To(BeFalse())
		})
	})

	Context("when callbacks are declared", func() {
		BeforeEach(func() {
			err := manager.Register(entity.Class{
				Name:       "Slug",
				Collection: "slugs",
				Structure: func(s *entity.Structure) {
					s.Attr("value").Char().
						OnSet(func(v any) any {
							if text, ok := v.(string); ok {
								return strings.TrimSpace(text)
							}
							return v
						}).
						OnToDB(func(v any) any { return strings.ToLower(v.(string)) }).
						OnToArray(func(v any) any { return strings.ToUpper(v.(string)) })
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("applies them on the way in and out", func() {
			slug := newEntity(manager, "Slug", map[string]any{"value": "  Hello World "})

			stored, err := slug.Attr("value").ToDB()

			Expect(err).NotTo(HaveOccurred())
			Expect(slug.Get("value")).To(Equal("Hello World"))
			Expect(stored).To(Equal("hello world"))
			Expect(slug.Attr("value").ToArray()).To(Equal("HELLO WORLD"))
		})
	})

	Context("when a getter returns another type", func() {
		BeforeEach(func() {
			err := manager.Register(entity.Class{
				Name:       "Event",
				Collection: "events",
				Structure: func(s *entity.Structure) {
					s.Attr("day").Date().OnGet(func(any) any { return "someday" })
					s.Attr("at").DateTime().OnGet(func(any) any { return 42 })
					s.Attr("where").GeoPoint().OnGet(func(any) any { return "here" })
				},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("renders the returned value as is", func() {
			// ARRANGE
			event := newEntity(manager, "Event", map[string]any{
				"day":   "2024-03-01",
				"at":    "2024-03-01T10:20:30Z",
				"where": map[string]any{"lat": 1.0, "lng": 2.0},
			})

			// ACT
			data, err := event.ToArray(ctx, "*", entity.DefaultDepth)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(HaveKeyWithValue("day", "someday"))
			Expect(data).To(HaveKeyWithValue("at", 42))
			Expect(data).To(HaveKeyWithValue("where", "here"))
		})
	})

	Context("when an attribute is set once", func() {
		It("refuses changes after the entity is persisted", func() {
			// ARRANGE
			book = newEntity(manager, stubs.BookClass, stubs.NewBookStub().With("isbn", "978-0441013593").Get())
			Expect(book.Save(ctx)).To(Succeed())

			// ACT
			err := book.Set("isbn", "000")

			// ASSERT
			Expect(err).To(MatchError(entity.ErrAttributeOnce))
			Expect(book.Get("isbn")).To(Equal("978-0441013593"))
		})

		It("allows the first value on a persisted entity", func() {
			book = newEntity(manager, stubs.BookClass, stubs.NewBookStub().Get())
			Expect(book.Save(ctx)).To(Succeed())

			Expect(book.Set("isbn", "978-0441013593")).To(Succeed())
		})
	})

	Context("when tracking changes", func() {
		It("marks only changed attributes dirty", func() {
			book = newEntity(manager, stubs.BookClass, stubs.NewBookStub().WithTitle("Dune").Get())
			Expect(book.Save(ctx)).To(Succeed())
			Expect(book.IsDirty()).To(BeFalse())

			Expect(book.Set("title", "Dune")).To(Succeed())
			Expect(book.IsDirty()).To(BeFalse())

			Expect(book.Set("title", "Dune Messiah")).To(Succeed())
			Expect(book.Attr("title").IsDirty()).To(BeTrue())
			Expect(book.Attr("pages").IsDirty()).To(BeFalse())
		})
	})
})
