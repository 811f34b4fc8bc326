package http_test

import (
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	webhttp "webinyframework/src/http"
	"webinyframework/src/test_artefacts/comparer"
)

var _ = Describe("Response", func() {
	It("sends a JSON body with its headers", func() {
		// ARRANGE
		response, err := webhttp.NewJSONResponse(map[string]any{"data": []int{1, 2}}, http.StatusCreated)
		Expect(err).NotTo(HaveOccurred())
		response.SetHeader("X-Request-Id", "abc")
		recorder := httptest.NewRecorder()

		// ACT
		err = response.Send(recorder)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(recorder.Code).To(Equal(http.StatusCreated))
		Expect(recorder.Header().Get("Content-Type")).To(Equal("application/json; charset=utf-8"))
		Expect(recorder.Header().Get("X-Request-Id")).To(Equal("abc"))
		Expect(recorder.Body.Bytes()).To(BeComparableTo([]byte(`{"data":[1,2]}`), comparer.JSONBody()))
	})

	DescribeTable("SetCacheControl",
		func(control webhttp.CacheControl, header string, offset time.Duration) {
			response := webhttp.NewResponse(nil, http.StatusOK).SetCacheControl(control)

			Expect(response.Header().Get("Cache-Control")).To(Equal(header))
			expires, err := http.ParseTime(response.Header().Get("Expires"))
			Expect(err).NotTo(HaveOccurred())
			Expect(expires).To(BeTemporally("~", time.Now().Add(offset), 2*time.Second))
		},
		Entry("public max age", webhttp.CacheControl{MaxAge: time.Minute}, "public, max-age=60", time.Minute),
		Entry("private max age", webhttp.CacheControl{MaxAge: 90 * time.Second, Private: true}, "private, max-age=90", 90*time.Second),
		Entry("no max age", webhttp.CacheControl{}, "no-cache", time.Duration(0)),
		Entry("no store", webhttp.CacheControl{MaxAge: time.Hour, NoStore: true}, "no-store", time.Duration(0)),
	)
})
