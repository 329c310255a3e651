package registry_test

import (
	"context"
	"net/http"
	"time"

	"github.com/containerd/errdefs"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	godigest "github.com/opencontainers/go-digest"

	"github.com/nicholas-fedor/tagwatch/pkg/registry"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

const (
	testRepository = "windows/servercore"
	testDigest     = "sha256:d4f5ad3c5e4b8ad2df7c8ad3c1e5e36a2ea5c8b6c7e9d1c2b3a4f5e6d7c8b9a0"
	testModified   = "Tue, 14 Oct 2025 08:00:00 GMT"
)

var _ = ginkgo.Describe("the registry client", func() {
	var (
		server *ghttp.Server
		client *registry.Client
		ctx    context.Context
	)

	ginkgo.BeforeEach(func() {
		server = ghttp.NewServer()
		ctx = context.Background()

		var err error
		client, err = registry.NewClient(server.URL(), time.Second, registry.WithUserAgent("tagwatch/test"))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		server.Close()
	})

	ginkgo.Describe("NewClient", func() {
		ginkgo.It("should default to the public registry", func() {
			defaultClient, err := registry.NewClient("", 0)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(defaultClient.BaseURL()).To(gomega.Equal("https://mcr.microsoft.com"))
		})

		ginkgo.It("should keep an explicit http scheme", func() {
			gomega.Expect(client.BaseURL()).To(gomega.Equal(server.URL()))
		})
	})

	ginkgo.Describe("ListTags", func() {
		ginkgo.It("should return the tags of a single page", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodGet, "/v2/windows/servercore/tags/list"),
				ghttp.VerifyHeaderKV("User-Agent", "tagwatch/test"),
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"name": testRepository,
					"tags": []string{"ltsc2019", "ltsc2022"},
				}),
			))

			tags, err := client.ListTags(ctx, testRepository)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).To(gomega.Equal([]string{"ltsc2019", "ltsc2022"}))
		})

		ginkgo.It("should follow next links", func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/v2/windows/servercore/tags/list"),
					ghttp.RespondWithJSONEncoded(http.StatusOK,
						map[string]any{"tags": []string{"a", "b"}},
						http.Header{"Link": []string{`</v2/windows/servercore/tags/list?last=b&n=2>; rel="next"`}},
					),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/v2/windows/servercore/tags/list", "last=b&n=2"),
					ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"tags": []string{"c"}}),
				),
			)

			tags, err := client.ListTags(ctx, testRepository)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).To(gomega.Equal([]string{"a", "b", "c"}))
			gomega.Expect(server.ReceivedRequests()).To(gomega.HaveLen(2))
		})

		ginkgo.It("should return an empty listing without error", func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{"tags": nil}))

			tags, err := client.ListTags(ctx, testRepository)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(tags).To(gomega.BeEmpty())
		})

		ginkgo.It("should fail on a server error", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))

			_, err := client.ListTags(ctx, testRepository)
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errdefs.IsUnavailable(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should fail on a malformed body", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, "not json"))

			_, err := client.ListTags(ctx, testRepository)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject an invalid repository name", func() {
			_, err := client.ListTags(ctx, "Invalid Name")
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errdefs.IsInvalidArgument(err)).To(gomega.BeTrue())
			gomega.Expect(server.ReceivedRequests()).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("FetchTag", func() {
		ginkgo.It("should return the digest and last-modified header from a HEAD request", func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodHead, "/v2/windows/servercore/manifests/ltsc2022"),
				func(_ http.ResponseWriter, r *http.Request) {
					gomega.Expect(r.Header.Get("Accept")).To(gomega.ContainSubstring("application/vnd.oci.image.index.v1+json"))
					gomega.Expect(r.Header.Get("Accept")).To(gomega.ContainSubstring("application/vnd.docker.distribution.manifest.v2+json"))
				},
				ghttp.RespondWith(http.StatusOK, nil, http.Header{
					"Docker-Content-Digest": []string{testDigest},
					"Last-Modified":         []string{testModified},
				}),
			))

			info, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(info).To(gomega.Equal(types.TagInfo{Digest: testDigest, LastModified: testModified}))
		})

		ginkgo.It("should report a missing tag as not found", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, nil))

			_, err := client.FetchTag(ctx, testRepository, "ltsc2016")
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errdefs.IsNotFound(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should not report other failures as not found", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusServiceUnavailable, nil))

			_, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errdefs.IsNotFound(err)).To(gomega.BeFalse())
		})

		ginkgo.It("should not report an unauthorized answer as not found", func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, nil))

			_, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errdefs.IsNotFound(err)).To(gomega.BeFalse())
		})

		ginkgo.It("should fall back to GET when HEAD omits the digest", func() {
			server.AppendHandlers(
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodHead, "/v2/windows/servercore/manifests/ltsc2022"),
					ghttp.RespondWith(http.StatusOK, nil),
				),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/v2/windows/servercore/manifests/ltsc2022"),
					ghttp.RespondWith(http.StatusOK, nil, http.Header{
						"Docker-Content-Digest": []string{testDigest},
					}),
				),
			)

			info, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(info.Digest).To(gomega.Equal(testDigest))
		})

		ginkgo.It("should compute the digest from the body when GET omits the header", func() {
			body := `{"schemaVersion":2}`

			server.AppendHandlers(
				ghttp.RespondWith(http.StatusMethodNotAllowed, nil),
				ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodGet, "/v2/windows/servercore/manifests/ltsc2022"),
					ghttp.RespondWith(http.StatusOK, body, http.Header{"Last-Modified": []string{testModified}}),
				),
			)

			info, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(info.Digest).To(gomega.Equal(godigest.FromString(body).String()))
			gomega.Expect(info.LastModified).To(gomega.Equal(testModified))
		})

		ginkgo.It("should report a 404 on the GET fallback as not found", func() {
			server.AppendHandlers(
				ghttp.RespondWith(http.StatusOK, nil),
				ghttp.RespondWith(http.StatusNotFound, nil),
			)

			_, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(errdefs.IsNotFound(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should fail when the registry is unreachable", func() {
			server.Close()

			_, err := client.FetchTag(ctx, testRepository, "ltsc2022")
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(errdefs.IsNotFound(err)).To(gomega.BeFalse())
			gomega.Expect(errdefs.IsUnavailable(err)).To(gomega.BeTrue())
		})

		ginkgo.It("should honour context cancellation", func() {
			server.SetAllowUnhandledRequests(true)

			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := client.FetchTag(cancelled, testRepository, "ltsc2022")
			gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("context canceled")))
		})
	})

	ginkgo.Describe("NewFactory", func() {
		ginkgo.It("should produce clients for the given address", func() {
			factory := registry.NewFactory()
			reg, err := factory(server.URL(), time.Second)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(reg).To(gomega.BeAssignableToTypeOf(&registry.Client{}))
		})
	})
})
