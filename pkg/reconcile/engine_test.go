package reconcile_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/nicholas-fedor/tagwatch/internal/actions/mocks"
	"github.com/nicholas-fedor/tagwatch/pkg/reconcile"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

const repo = "windows/servercore"

var errRegistryDown = errors.New("registry unavailable")

func repos(names ...string) []types.RepositoryConfig {
	out := make([]types.RepositoryConfig, 0, len(names))
	for _, name := range names {
		out = append(out, types.RepositoryConfig{Name: name})
	}

	return out
}

func stateOf(tags map[string]string, notFound ...string) types.RepositoryState {
	state := types.NewRepositoryState()
	for tag, digest := range tags {
		state.Tags[tag] = types.TagInfo{Digest: digest}
	}

	if notFound != nil {
		state.NotFound = notFound
	}

	return state
}

var _ = ginkgo.Describe("the reconciliation engine", func() {
	var (
		registry *mocks.Registry
		engine   *reconcile.Engine
		ctx      context.Context
	)

	ginkgo.BeforeEach(func() {
		registry = mocks.NewRegistry()
		engine = &reconcile.Engine{Registry: registry, Mode: types.SelectAll}
		ctx = context.Background()
	})

	ginkgo.When("the prior state is empty", func() {
		ginkgo.It("should report every resolved tag as new", func() {
			registry.SetTags(repo, "v2", "v1").
				SetManifest(repo, "v1", "d1").
				SetManifest(repo, "v2", "d2")

			result, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Events).To(gomega.Equal([]types.ChangeEvent{
				{Kind: types.ChangeNew, Repository: repo, Tag: "v1", Digest: "d1"},
				{Kind: types.ChangeNew, Repository: repo, Tag: "v2", Digest: "d2"},
			}))
			gomega.Expect(result.State).To(gomega.Equal(types.GlobalState{
				repo: stateOf(map[string]string{"v1": "d1", "v2": "d2"}),
			}))
			gomega.Expect(result.Summary.New).To(gomega.Equal(2))
			gomega.Expect(result.Summary.TagsChecked).To(gomega.Equal(2))
		})
	})

	ginkgo.When("a known tag changes digest", func() {
		ginkgo.It("should report an update carrying the previous digest", func() {
			registry.SetTags(repo, "v1").SetManifest(repo, "v1", "d2")
			prior := types.GlobalState{repo: stateOf(map[string]string{"v1": "d1"})}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Events).To(gomega.Equal([]types.ChangeEvent{
				{Kind: types.ChangeUpdated, Repository: repo, Tag: "v1", Digest: "d2", PreviousDigest: "d1"},
			}))
			gomega.Expect(result.State[repo].Tags).To(gomega.HaveKeyWithValue("v1", types.TagInfo{Digest: "d2"}))
			gomega.Expect(prior[repo].Tags["v1"].Digest).To(gomega.Equal("d1"), "prior state must not be modified")
		})
	})

	ginkgo.When("a not-found tag leaves the listing", func() {
		ginkgo.It("should prune it without querying or reporting it", func() {
			registry.SetTags(repo, "v1").SetManifest(repo, "v1", "d1")
			prior := types.GlobalState{repo: stateOf(map[string]string{"v1": "d1"}, "vX")}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Events).To(gomega.BeEmpty())
			gomega.Expect(result.State[repo].NotFound).To(gomega.BeEmpty())
			gomega.Expect(registry.FetchCalls()).NotTo(gomega.ContainElement(repo + ":vX"))
		})
	})

	ginkgo.When("a tag is selected by pattern", func() {
		ginkgo.It("should only query matching tags", func() {
			registry.SetTags(repo, "ltsc2022-a", "other-b").
				SetManifest(repo, "ltsc2022-a", "da").
				SetManifest(repo, "other-b", "db")

			result, err := engine.Run(ctx, []types.RepositoryConfig{
				{Name: repo, Tags: []string{"ltsc2022-*"}},
			}, types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(registry.FetchCalls()).To(gomega.Equal([]string{repo + ":ltsc2022-a"}))
			gomega.Expect(result.State[repo].Tags).To(gomega.HaveLen(1))
		})
	})

	ginkgo.It("should produce no events when run twice on unchanged data", func() {
		registry.SetTags(repo, "a", "b", "gone").
			SetManifest(repo, "a", "da").
			SetManifest(repo, "b", "db")

		first, err := engine.Run(ctx, repos(repo), types.GlobalState{})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(first.Events).To(gomega.HaveLen(2))

		second, err := engine.Run(ctx, repos(repo), first.State)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(second.Events).To(gomega.BeEmpty())
		gomega.Expect(second.State).To(gomega.Equal(first.State))
	})

	ginkgo.Describe("not-found handling", func() {
		ginkgo.BeforeEach(func() {
			registry.SetTags(repo, "a", "ghost").SetManifest(repo, "a", "da")
		})

		ginkgo.It("should record a listed tag answering not found", func() {
			result, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo].NotFound).To(gomega.Equal([]string{"ghost"}))
			gomega.Expect(result.State[repo].Tags).NotTo(gomega.HaveKey("ghost"))
			gomega.Expect(result.Summary.NotFound).To(gomega.Equal(1))
		})

		ginkgo.It("should not query a not-found tag again while it stays listed", func() {
			first, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			registry.ResetCalls()
			registry.SetManifest(repo, "ghost", "dg")

			second, err := engine.Run(ctx, repos(repo), first.State)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(registry.FetchCalls()).To(gomega.Equal([]string{repo + ":a"}))
			gomega.Expect(second.State[repo].NotFound).To(gomega.Equal([]string{"ghost"}))
			gomega.Expect(second.Summary.TagsSkipped).To(gomega.Equal(1))
			gomega.Expect(second.Events).To(gomega.BeEmpty())
		})

		ginkgo.It("should report a reappearing tag as new once it was pruned", func() {
			first, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(first.State[repo].NotFound).To(gomega.ContainElement("ghost"))

			registry.SetTags(repo, "a")

			second, err := engine.Run(ctx, repos(repo), first.State)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(second.State[repo].NotFound).To(gomega.BeEmpty())
			gomega.Expect(second.Events).To(gomega.BeEmpty())

			registry.SetTags(repo, "a", "ghost").SetManifest(repo, "ghost", "dg")

			third, err := engine.Run(ctx, repos(repo), second.State)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(third.Events).To(gomega.Equal([]types.ChangeEvent{
				{Kind: types.ChangeNew, Repository: repo, Tag: "ghost", Digest: "dg"},
			}))
			gomega.Expect(third.State[repo].NotFound).To(gomega.BeEmpty())
		})

		ginkgo.It("should move a known tag to not found when its manifest disappears", func() {
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da", "ghost": "dg"})}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo].Tags).To(gomega.HaveKey("a"))
			gomega.Expect(result.State[repo].Tags).NotTo(gomega.HaveKey("ghost"))
			gomega.Expect(result.State[repo].NotFound).To(gomega.Equal([]string{"ghost"}))
			gomega.Expect(result.Events).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("unknown fetch results", func() {
		ginkgo.It("should record nothing for a new tag that failed", func() {
			registry.SetTags(repo, "a").SetFetchError(repo, "a", errRegistryDown)

			result, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo].Tags).To(gomega.BeEmpty())
			gomega.Expect(result.State[repo].NotFound).To(gomega.BeEmpty())
			gomega.Expect(result.Summary.Unknown).To(gomega.Equal(1))
		})

		ginkgo.It("should drop the previous identity of a known tag that failed", func() {
			registry.SetTags(repo, "a", "b").SetFetchError(repo, "a", errRegistryDown).SetManifest(repo, "b", "db")
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da", "b": "db"})}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo].Tags).NotTo(gomega.HaveKey("a"))
			gomega.Expect(result.State[repo].Tags).To(gomega.HaveKeyWithValue("b", types.TagInfo{Digest: "db"}))
			gomega.Expect(result.State[repo].NotFound).To(gomega.BeEmpty())
			gomega.Expect(result.Events).To(gomega.BeEmpty())
			gomega.Expect(prior[repo].Tags).To(gomega.HaveKey("a"))
		})

		ginkgo.It("should report a dropped tag as new once it resolves again", func() {
			registry.SetTags(repo, "a").SetFetchError(repo, "a", errRegistryDown)
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da"})}

			first, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			registry.SetManifest(repo, "a", "da")

			second, err := engine.Run(ctx, repos(repo), first.State)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(second.Events).To(gomega.HaveLen(1))
			gomega.Expect(second.Events[0].Kind).To(gomega.Equal(types.ChangeNew))
			gomega.Expect(second.State[repo].Tags).To(gomega.HaveKeyWithValue("a", types.TagInfo{Digest: "da"}))
		})

		ginkgo.It("should query the tag again on the next run", func() {
			registry.SetTags(repo, "a").SetFetchError(repo, "a", errRegistryDown)

			first, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			registry.SetManifest(repo, "a", "da")

			second, err := engine.Run(ctx, repos(repo), first.State)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(second.Events).To(gomega.HaveLen(1))
			gomega.Expect(second.Events[0].Kind).To(gomega.Equal(types.ChangeNew))
		})
	})

	ginkgo.Describe("carry forward", func() {
		ginkgo.It("should keep tags that are no longer selected", func() {
			registry.SetTags(repo, "a", "b").SetManifest(repo, "a", "da").SetManifest(repo, "b", "db2")
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da", "b": "db"})}

			result, err := engine.Run(ctx, []types.RepositoryConfig{{Name: repo, Tags: []string{"a"}}}, prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Events).To(gomega.BeEmpty())
			gomega.Expect(result.State[repo].Tags).To(gomega.HaveKeyWithValue("b", types.TagInfo{Digest: "db"}))
		})

		ginkgo.It("should keep repositories that are no longer configured", func() {
			registry.SetTags(repo, "a").SetManifest(repo, "a", "da")
			prior := types.GlobalState{"windows/nanoserver": stateOf(map[string]string{"x": "dx"})}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State).To(gomega.HaveKey("windows/nanoserver"))
			gomega.Expect(result.State).To(gomega.HaveKey(repo))
		})

		ginkgo.It("should refresh last-modified values of unchanged tags without reporting them", func() {
			registry.SetTags(repo, "a").SetManifest(repo, "a", "da")
			prior := types.GlobalState{repo: types.RepositoryState{
				Tags:     map[string]types.TagInfo{"a": {Digest: "da", LastModified: "old"}},
				NotFound: []string{},
			}}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Events).To(gomega.BeEmpty())
			gomega.Expect(result.State[repo].Tags["a"]).To(gomega.Equal(types.TagInfo{Digest: "da"}))
		})
	})

	ginkgo.Describe("failure isolation", func() {
		ginkgo.It("should keep the prior state of a repository whose listing failed", func() {
			registry.SetListError(repo, errRegistryDown).
				SetTags("windows/nanoserver", "x").
				SetManifest("windows/nanoserver", "x", "dx")
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da"}, "gone")}

			result, err := engine.Run(ctx, repos(repo, "windows/nanoserver"), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo]).To(gomega.Equal(prior[repo]))
			gomega.Expect(result.Events).To(gomega.HaveLen(1))
			gomega.Expect(result.Events[0].Repository).To(gomega.Equal("windows/nanoserver"))
			gomega.Expect(result.Summary.RepositoriesFailed).To(gomega.Equal(1))
			gomega.Expect(result.Summary.Repositories).To(gomega.Equal(2))
		})

		ginkgo.It("should treat an empty listing as a failure", func() {
			registry.SetTags(repo)
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da"}, "gone")}

			result, err := engine.Run(ctx, repos(repo), prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo]).To(gomega.Equal(prior[repo]))
			gomega.Expect(result.Summary.RepositoriesFailed).To(gomega.Equal(1))
		})

		ginkgo.It("should not add state for a new repository whose listing failed", func() {
			registry.SetListError(repo, errRegistryDown)

			result, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State).To(gomega.BeEmpty())
		})

		ginkgo.It("should keep the prior state when a pattern is invalid", func() {
			registry.SetTags(repo, "a")
			prior := types.GlobalState{repo: stateOf(map[string]string{"a": "da"})}

			result, err := engine.Run(ctx, []types.RepositoryConfig{{Name: repo, Tags: []string{"a["}}}, prior)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.State[repo]).To(gomega.Equal(prior[repo]))
			gomega.Expect(registry.FetchCalls()).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("selector modes", func() {
		ginkgo.It("should only query the latest tag in latest mode", func() {
			engine.Mode = types.SelectLatest
			registry.SetTags(repo, "ltsc2019", "ltsc2022").SetManifest(repo, "ltsc2022", "d")

			result, err := engine.Run(ctx, repos(repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(registry.FetchCalls()).To(gomega.Equal([]string{repo + ":ltsc2022"}))
			gomega.Expect(result.Events).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Describe("cancellation", func() {
		ginkgo.It("should abort without a result", func() {
			cancelled, cancel := context.WithCancel(ctx)
			registry.SetTags(repo, "a", "b").SetManifest(repo, "a", "da").SetManifest(repo, "b", "db")
			registry.OnFetch = func(_, _ string) { cancel() }

			result, err := engine.Run(cancelled, repos(repo), types.GlobalState{})
			gomega.Expect(err).To(gomega.MatchError(context.Canceled))
			gomega.Expect(result).To(gomega.BeNil())
		})

		ginkgo.It("should abort a concurrent run", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			engine.Concurrency = 4
			registry.SetTags(repo, "a").SetTags("windows/nanoserver", "b")

			result, err := engine.Run(cancelled, repos(repo, "windows/nanoserver"), types.GlobalState{})
			gomega.Expect(err).To(gomega.MatchError(context.Canceled))
			gomega.Expect(result).To(gomega.BeNil())
		})
	})

	ginkgo.Describe("concurrency", func() {
		ginkgo.It("should produce the same ordered output as a sequential run", func() {
			names := make([]string, 0, 8)
			for i := range 8 {
				name := fmt.Sprintf("windows/repo%d", i)
				names = append(names, name)
				registry.SetTags(name, "b", "a").
					SetManifest(name, "a", "da").
					SetManifest(name, "b", "db")
			}

			sequential, err := engine.Run(ctx, repos(names...), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			engine.Concurrency = 4

			concurrent, err := engine.Run(ctx, repos(names...), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(concurrent.Events).To(gomega.Equal(sequential.Events))
			gomega.Expect(concurrent.State).To(gomega.Equal(sequential.State))
			gomega.Expect(concurrent.Summary).To(gomega.Equal(sequential.Summary))
		})
	})

	ginkgo.Describe("repeated repositories", func() {
		const other = "windows/nanoserver"

		ginkgo.BeforeEach(func() {
			registry.SetTags(repo, "a", "b").SetManifest(repo, "a", "da").SetManifest(repo, "b", "db")
			registry.SetTags(other, "x").SetManifest(other, "x", "dx")
		})

		ginkgo.It("should evaluate each entry against the state left by the previous one", func() {
			config := []types.RepositoryConfig{
				{Name: repo, Tags: []string{"a"}},
				{Name: other},
				{Name: repo},
			}

			result, err := engine.Run(ctx, config, types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Events).To(gomega.HaveLen(3))
			gomega.Expect(result.Events[0].Repository).To(gomega.Equal(repo))
			gomega.Expect(result.Events[0].Tag).To(gomega.Equal("a"))
			gomega.Expect(result.Events[1].Repository).To(gomega.Equal(other))
			gomega.Expect(result.Events[2].Repository).To(gomega.Equal(repo))
			gomega.Expect(result.Events[2].Tag).To(gomega.Equal("b"))

			gomega.Expect(result.State[repo].Tags).To(gomega.HaveKeyWithValue("a", types.TagInfo{Digest: "da"}))
			gomega.Expect(result.State[repo].Tags).To(gomega.HaveKeyWithValue("b", types.TagInfo{Digest: "db"}))
			gomega.Expect(result.Summary.Repositories).To(gomega.Equal(3))
		})

		ginkgo.It("should report a change only once for identical entries", func() {
			engine.Concurrency = 4

			result, err := engine.Run(ctx, repos(repo, other, repo), types.GlobalState{})
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			gomega.Expect(result.Summary.New).To(gomega.Equal(3))
			gomega.Expect(result.Events).To(gomega.HaveLen(3))
			gomega.Expect(result.State[repo].Tags).To(gomega.HaveLen(2))
		})
	})

	ginkgo.It("should fail without a registry", func() {
		_, err := (&reconcile.Engine{}).Run(ctx, nil, nil)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})
