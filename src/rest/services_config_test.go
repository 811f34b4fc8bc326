package rest_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/entity"
	"webinyframework/src/library"
	"webinyframework/src/rest"
	"webinyframework/src/servicemanager"
	"webinyframework/src/test_artefacts/memstore"
)

var _ = Describe("Service configuration", func() {
	var router *rest.Router

	BeforeEach(func() {
		router = rest.NewRouter("/api")
	})

	It("registers the catalogue services declared in the config file", func() {
		// ARRANGE
		manager := entity.NewManager(newLogger(), memstore.New())
		Expect(library.Register(manager)).To(Succeed())

		sm := servicemanager.New(newLogger())
		sm.RegisterInstance("EntityManager", manager)
		Expect(sm.RegisterFactory("rest.EntityService", rest.NewEntityService)).To(Succeed())
		config, err := servicemanager.LoadConfig("../../config/services.yaml")
		Expect(err).NotTo(HaveOccurred())
		Expect(sm.Load(config)).To(Succeed())

		// ACT
		providers, err := sm.GetByTag("rest")
		Expect(err).NotTo(HaveOccurred())
		err = router.RegisterProviders("library", providers)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(providers).To(HaveLen(4))

		books, err := router.Match(http.MethodGet, "/api/library/latest/books")
		Expect(err).NotTo(HaveOccurred())
		Expect(books.Method.CacheTTL).To(Equal(time.Minute))
		Expect(books.Service.CacheTags).To(Equal([]string{library.BookClass, library.AuthorClass, library.TagClass, library.ReviewClass}))

		reviews, err := router.Match(http.MethodGet, "/api/library/v1.0/reviews")
		Expect(err).NotTo(HaveOccurred())
		Expect(reviews.Method.CacheTTL).To(BeZero())
	})

	It("rejects values that do not provide a service", func() {
		err := router.RegisterProviders("library", []any{"Books"})

		Expect(err).To(MatchError(rest.ErrInvalidService))
	})
})
