package actions_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/nicholas-fedor/tagwatch/internal/actions"
	"github.com/nicholas-fedor/tagwatch/internal/actions/mocks"
	"github.com/nicholas-fedor/tagwatch/pkg/config"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

const repo = "windows/servercore"

var errStorage = errors.New("storage unavailable")

func writeConfig(content string) string {
	path := filepath.Join(ginkgo.GinkgoT().TempDir(), "config.json")
	gomega.Expect(os.WriteFile(path, []byte(content), 0o600)).To(gomega.Succeed())

	return path
}

var _ = ginkgo.Describe("the check action", func() {
	var (
		registry   *mocks.Registry
		store      *mocks.StateStore
		sink       *mocks.ReportSink
		params     types.CheckParams
		usedURL    string
		factoryErr error
		ctx        context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		registry = mocks.NewRegistry()
		store = mocks.NewStateStore(nil)
		sink = &mocks.ReportSink{}
		usedURL = ""
		factoryErr = nil

		params = types.CheckParams{
			ConfigPath: writeConfig(`{"registry": "registry.example.com", "repos": ["windows/servercore"]}`),
			Timeout:    time.Second,
			Store:      store,
			Sink:       sink,
			NewRegistry: func(baseURL string, _ time.Duration) (types.Registry, error) {
				usedURL = baseURL

				return registry, factoryErr
			},
		}
	})

	ginkgo.When("the registry reports new tags", func() {
		ginkgo.BeforeEach(func() {
			registry.SetTags(repo, "v1", "v2").SetManifest(repo, "v1", "d1").SetManifest(repo, "v2", "d2")
		})

		ginkgo.It("should persist the new state and report the changes", func() {
			result, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.RunID).NotTo(gomega.BeEmpty())
			gomega.Expect(result.Events).To(gomega.HaveLen(2))
			gomega.Expect(result.Status()).To(gomega.Equal(types.StatusCompleted))
			gomega.Expect(store.Saves).To(gomega.Equal(1))
			gomega.Expect(store.State()[repo].Tags).To(gomega.HaveLen(2))
			gomega.Expect(sink.Reports).To(gomega.HaveLen(1))
			gomega.Expect(sink.Reports[0].RunID).To(gomega.Equal(result.RunID))
		})

		ginkgo.It("should report nothing on a second run", func() {
			_, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			result, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(result.Events).To(gomega.BeEmpty())
		})

		ginkgo.It("should use the registry from the document", func() {
			_, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(usedURL).To(gomega.Equal("registry.example.com"))
		})

		ginkgo.It("should prefer the registry override", func() {
			params.RegistryURL = "http://localhost:5000"

			_, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(usedURL).To(gomega.Equal("http://localhost:5000"))
		})

		ginkgo.It("should surface a persistence failure without aborting", func() {
			store.SaveError = errStorage

			result, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.StateErr).To(gomega.MatchError(errStorage))
			gomega.Expect(result.Status()).To(gomega.Equal(types.StatusStateNotPersisted))
			gomega.Expect(result.Events).To(gomega.HaveLen(2))
			gomega.Expect(sink.Reports).To(gomega.HaveLen(1))
			gomega.Expect(sink.Reports[0].StateErr).To(gomega.HaveOccurred())
		})

		ginkgo.It("should continue when the report cannot be written", func() {
			sink.Err = errStorage

			result, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(result.Events).To(gomega.HaveLen(2))
		})
	})

	ginkgo.When("the configuration is invalid", func() {
		ginkgo.It("should abort before touching the registry or the state", func() {
			params.ConfigPath = writeConfig(`{"repos": []}`)

			result, err := actions.Check(ctx, params)

			var cfgErr *config.Error
			gomega.Expect(errors.As(err, &cfgErr)).To(gomega.BeTrue())
			gomega.Expect(result).To(gomega.BeNil())
			gomega.Expect(store.Loads).To(gomega.Equal(0))
			gomega.Expect(registry.ListCalls()).To(gomega.BeEmpty())
		})

		ginkgo.It("should reject an unknown selector mode", func() {
			params.SelectorMode = "newest"

			_, err := actions.Check(ctx, params)

			var cfgErr *config.Error
			gomega.Expect(errors.As(err, &cfgErr)).To(gomega.BeTrue())
			gomega.Expect(store.Loads).To(gomega.Equal(0))
		})

		ginkgo.It("should report a registry client failure as a configuration error", func() {
			factoryErr = errStorage

			_, err := actions.Check(ctx, params)

			var cfgErr *config.Error
			gomega.Expect(errors.As(err, &cfgErr)).To(gomega.BeTrue())
		})
	})

	ginkgo.When("the prior state cannot be loaded", func() {
		ginkgo.It("should abort without writing state", func() {
			store.LoadError = errStorage

			result, err := actions.Check(ctx, params)

			gomega.Expect(err).To(gomega.MatchError(errStorage))
			gomega.Expect(result).To(gomega.BeNil())
			gomega.Expect(store.Saves).To(gomega.Equal(0))
			gomega.Expect(sink.Reports).To(gomega.BeEmpty())
		})
	})

	ginkgo.When("the run is cancelled", func() {
		ginkgo.It("should abort without writing state", func() {
			cancelled, cancel := context.WithCancel(ctx)
			registry.SetTags(repo, "v1").SetManifest(repo, "v1", "d1")
			registry.OnFetch = func(_, _ string) { cancel() }

			result, err := actions.Check(cancelled, params)

			gomega.Expect(err).To(gomega.MatchError(context.Canceled))
			gomega.Expect(result).To(gomega.BeNil())
			gomega.Expect(store.Saves).To(gomega.Equal(0))
		})
	})

	ginkgo.When("a repository cannot be listed", func() {
		ginkgo.It("should complete with errors and keep the prior state", func() {
			store = mocks.NewStateStore(types.GlobalState{
				repo: {Tags: map[string]types.TagInfo{"v1": {Digest: "d1"}}, NotFound: []string{}},
			})
			params.Store = store
			registry.SetListError(repo, errStorage)

			result, err := actions.Check(ctx, params)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Status()).To(gomega.Equal(types.StatusCompletedWithErrors))
			gomega.Expect(store.State()[repo].Tags).To(gomega.HaveKey("v1"))
		})
	})

	ginkgo.It("should fail without a state store", func() {
		params.Store = nil

		_, err := actions.Check(ctx, params)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})
