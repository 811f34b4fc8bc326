package server_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"webinyframework/src/rest"
	"webinyframework/src/server"
)

var _ = Describe("Server", func() {
	var (
		router *rest.Router
		checks []server.HealthCheck
	)

	BeforeEach(func() {
		router = rest.NewRouter("/api")
		Expect(router.Register("library", rest.Service{
			Name:    "Books",
			Version: "1.0",
			Methods: []rest.Method{{Name: "list", Default: true, Handler: func(*rest.Call) (any, error) {
				return []string{"Dune"}, nil
			}}},
		})).To(Succeed())
		checks = []server.HealthCheck{
			{Name: "mongo", Check: func(context.Context) error { return nil }},
		}
	})

	serve := func(method, path string) *httptest.ResponseRecorder {
		dispatcher := rest.NewDispatcher(newLogger(), router, nil, nil, nil)
		srv := server.NewServer(newLogger(), 8080, router, dispatcher, checks...)
		recorder := httptest.NewRecorder()
		srv.Handler().ServeHTTP(recorder, httptest.NewRequest(method, path, nil))
		return recorder
	}

	It("dispatches REST calls under the router prefix", func() {
		recorder := serve(http.MethodGet, "/api/library/v1.0/books")

		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)).To(HaveKeyWithValue("data", ConsistOf("Dune")))
	})

	It("answers unknown REST paths with the error envelope", func() {
		recorder := serve(http.MethodGet, "/api/library/v1.0/authors")

		Expect(recorder.Code).To(Equal(http.StatusNotFound))
		Expect(decodeBody(recorder)).To(HaveKey("errorReport"))
	})

	It("lists the registered routes", func() {
		recorder := serve(http.MethodGet, "/v1/services")

		Expect(recorder.Code).To(Equal(http.StatusOK))
		Expect(decodeBody(recorder)["routes"]).To(ConsistOf(SatisfyAll(
			HaveKeyWithValue("path", "/api/library/v1.0/books"),
			HaveKeyWithValue("verb", "GET"),
			HaveKeyWithValue("service", "Books"),
		)))
	})

	Context("Health", func() {
		It("reports every passing check", func() {
			// ACT
			recorder := serve(http.MethodGet, "/v1/health")

			// ASSERT
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Cache-Control")).To(Equal("no-cache"))
			Expect(decodeBody(recorder)).To(Equal(map[string]any{
				"status": "ok",
				"checks": map[string]any{"mongo": "ok"},
			}))
		})

		It("answers 503 when a dependency is down", func() {
			// ARRANGE
			checks = append(checks, server.HealthCheck{Name: "redis", Check: func(context.Context) error {
				return errors.New("connection refused")
			}})

			// ACT
			recorder := serve(http.MethodGet, "/v1/health")

			// ASSERT
			Expect(recorder.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(decodeBody(recorder)).To(Equal(map[string]any{
				"status": "unavailable",
				"checks": map[string]any{"mongo": "ok", "redis": "connection refused"},
			}))
		})
	})
})
