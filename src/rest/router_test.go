package rest_test

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/rest"
)

var _ = Describe("Router", func() {
	var router *rest.Router

	books := func(version string) rest.Service {
		return rest.Service{
			Name:    "Books",
			Version: version,
			Methods: []rest.Method{
				{Name: "list", Default: true, Handler: reply("list")},
				{Name: "create", Verb: http.MethodPost, Default: true, Handler: reply("create")},
				{Name: "get", URL: "{id}", Params: []rest.Param{{Name: "id", Type: rest.ParamInteger}}, Handler: reply("get")},
				{Name: "topRated", Handler: reply("topRated")},
				{Name: "byAuthor", Params: []rest.Param{
					{Name: "author"},
					{Name: "page", Type: rest.ParamInteger, Optional: true, Default: int64(1)},
				}, Handler: reply("byAuthor")},
			},
		}
	}

	BeforeEach(func() {
		router = rest.NewRouter("/api/")
		Expect(router.Register("library", books("1.0"))).To(Succeed())
		Expect(router.Register("library", rest.Service{
			Name:    "Books",
			Version: "v2.1",
			Methods: []rest.Method{{Name: "list", Default: true, Handler: reply("list v2")}},
		})).To(Succeed())
	})

	expectError := func(err error, status int) {
		var restErr *rest.Error
		Expect(err).To(BeAssignableToTypeOf(restErr))
		Expect(err.(*rest.Error).Status).To(Equal(status))
	}

	Describe("Match", func() {
		It("serves default methods from the service root", func() {
			match, err := router.Match(http.MethodGet, "/api/library/v1.0/books")

			Expect(err).NotTo(HaveOccurred())
			Expect(match.Method.Name).To(Equal("list"))
			Expect(match.Version).To(Equal("v1.0"))
			Expect(match.API).To(Equal("library"))
		})

		It("picks the method by verb", func() {
			match, err := router.Match(http.MethodPost, "/api/library/1.0/books")

			Expect(err).NotTo(HaveOccurred())
			Expect(match.Method.Name).To(Equal("create"))
		})

		It("converts typed params", func() {
			match, err := router.Match(http.MethodGet, "/api/library/v1.0/books/42")

			Expect(err).NotTo(HaveOccurred())
			Expect(match.Method.Name).To(Equal("get"))
			Expect(match.Params).To(Equal(map[string]any{"id": int64(42)}))
		})

		It("ranks static segments above params", func() {
			match, err := router.Match(http.MethodGet, "/api/library/v1.0/books/top-rated")

			Expect(err).NotTo(HaveOccurred())
			Expect(match.Method.Name).To(Equal("topRated"))
		})

		It("derives urls from the method name and fills optional params", func() {
			match, err := router.Match(http.MethodGet, "/api/library/v1.0/books/by-author/herbert")
			Expect(err).NotTo(HaveOccurred())
			Expect(match.Params).To(Equal(map[string]any{"author": "herbert", "page": int64(1)}))

			match, err = router.Match(http.MethodGet, "/api/library/v1.0/books/by-author/herbert/3")
			Expect(err).NotTo(HaveOccurred())
			Expect(match.Params).To(Equal(map[string]any{"author": "herbert", "page": int64(3)}))
		})

		It("resolves latest to the highest version", func() {
			match, err := router.Match(http.MethodGet, "/api/library/latest/books")

			Expect(err).NotTo(HaveOccurred())
			Expect(match.Version).To(Equal("v2.1"))
			Expect(match.Service.Version).To(Equal("v2.1"))
		})

		It("returns 400 for params of the wrong type", func() {
			_, err := router.Match(http.MethodGet, "/api/library/v1.0/books/abc")

			expectError(err, http.StatusBadRequest)
		})

		It("returns 405 when only the verb differs", func() {
			_, err := router.Match(http.MethodDelete, "/api/library/v1.0/books")

			expectError(err, http.StatusMethodNotAllowed)
			Expect(err.Error()).To(ContainSubstring("GET, POST"))
		})

		DescribeTable("returns 404 for unknown paths",
			func(path string) {
				_, err := router.Match(http.MethodGet, path)

				expectError(err, http.StatusNotFound)
			},
			Entry("outside the prefix", "/other/library/v1.0/books"),
			Entry("unknown api", "/api/store/v1.0/books"),
			Entry("unknown version", "/api/library/v3.0/books"),
			Entry("unknown service", "/api/library/v1.0/authors"),
			Entry("too many segments", "/api/library/v1.0/books/top-rated/extra"),
			Entry("too short", "/api/library"),
		)
	})

	Describe("Register", func() {
		It("does not alter the registered service value", func() {
			service := books("3.0")

			Expect(router.Register("library", service)).To(Succeed())

			Expect(service.Methods[0].Verb).To(BeEmpty())
			Expect(router.Services()).To(HaveLen(3))
		})

		DescribeTable("rejects invalid services",
			func(service rest.Service) {
				Expect(router.Register("library", service)).To(MatchError(rest.ErrInvalidService))
			},
			Entry("without version", rest.Service{Name: "Tags"}),
			Entry("without handler", rest.Service{Name: "Tags", Version: "1.0", Methods: []rest.Method{{Name: "list"}}}),
			Entry("with a required param after an optional one", rest.Service{Name: "Tags", Version: "1.0", Methods: []rest.Method{{
				Name:    "find",
				Params:  []rest.Param{{Name: "a", Optional: true}, {Name: "b"}},
				Handler: reply(nil),
			}}}),
			Entry("with an unknown url param", rest.Service{Name: "Tags", Version: "1.0", Methods: []rest.Method{{
				Name:    "find",
				URL:     "{slug}",
				Handler: reply(nil),
			}}}),
			Entry("with an unknown param type", rest.Service{Name: "Tags", Version: "1.0", Methods: []rest.Method{{
				Name:    "find",
				Params:  []rest.Param{{Name: "a", Type: "date"}},
				Handler: reply(nil),
			}}}),
		)
	})

	DescribeTable("Kebab",
		func(name, expected string) {
			Expect(rest.Kebab(name)).To(Equal(expected))
		},
		Entry("camel case", "listByAuthor", "list-by-author"),
		Entry("pascal case", "Books", "books"),
		Entry("acronym", "HTMLParser", "html-parser"),
		Entry("snake case", "shelf_items", "shelf-items"),
	)

	Describe("Routes", func() {
		It("lists every method with its path", func() {
			routes := router.Routes()

			paths := make([]string, 0, len(routes))
			for _, route := range routes {
				paths = append(paths, route.Verb+" "+route.Path)
			}
			Expect(paths).To(Equal([]string{
				"GET /api/library/v1.0/books",
				"POST /api/library/v1.0/books",
				"GET /api/library/v1.0/books/by-author/{author}/{page?}",
				"GET /api/library/v1.0/books/top-rated",
				"GET /api/library/v1.0/books/{id}",
				"GET /api/library/v2.1/books",
			}))
			Expect(routes[0].Service).To(Equal("Books"))
			Expect(routes[0].API).To(Equal("library"))
		})
	})
})
