package actions_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/nicholas-fedor/tagwatch/internal/actions"
	"github.com/nicholas-fedor/tagwatch/internal/actions/mocks"
	"github.com/nicholas-fedor/tagwatch/internal/flags"
	"github.com/nicholas-fedor/tagwatch/pkg/config"
	"github.com/nicholas-fedor/tagwatch/pkg/state"
	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

var _ = ginkgo.Describe("building check parameters", func() {
	var opts flags.Options

	ginkgo.BeforeEach(func() {
		opts = flags.Options{
			ConfigPath:   "config.json",
			RegistryURL:  "http://localhost:5000",
			SelectorMode: "latest",
			Timeout:      5 * time.Second,
			Concurrency:  3,
			ReportFormat: "json",
			State: state.Config{
				Backend: state.BackendLocal,
				File:    filepath.Join(ginkgo.GinkgoT().TempDir(), "state.json"),
			},
		}
	})

	ginkgo.It("should carry the settings over", func() {
		params, err := actions.NewCheckParams(context.Background(), opts, &bytes.Buffer{})
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(params.ConfigPath).To(gomega.Equal("config.json"))
		gomega.Expect(params.RegistryURL).To(gomega.Equal("http://localhost:5000"))
		gomega.Expect(params.SelectorMode).To(gomega.Equal(types.SelectLatest))
		gomega.Expect(params.Timeout).To(gomega.Equal(5 * time.Second))
		gomega.Expect(params.Concurrency).To(gomega.Equal(3))
		gomega.Expect(params.Store.String()).To(gomega.Equal("file://" + opts.State.File))
		gomega.Expect(params.Sink).NotTo(gomega.BeNil())
	})

	ginkgo.It("should leave the sink unset without an output", func() {
		params, err := actions.NewCheckParams(context.Background(), opts, nil)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(params.Sink).To(gomega.BeNil())
	})

	ginkgo.It("should report an unusable state backend as a configuration error", func() {
		opts.State = state.Config{Backend: state.BackendS3}

		_, err := actions.NewCheckParams(context.Background(), opts, nil)

		var cfgErr *config.Error
		gomega.Expect(errors.As(err, &cfgErr)).To(gomega.BeTrue())
		gomega.Expect(errors.Is(err, state.ErrInvalidConfig)).To(gomega.BeTrue())
	})

	ginkgo.It("should report an unknown report format as a configuration error", func() {
		opts.ReportFormat = "xml"

		_, err := actions.NewCheckParams(context.Background(), opts, &bytes.Buffer{})

		var cfgErr *config.Error
		gomega.Expect(errors.As(err, &cfgErr)).To(gomega.BeTrue())
	})

	ginkgo.It("should drive a complete run with the built parameters", func() {
		var out bytes.Buffer

		params, err := actions.NewCheckParams(context.Background(), opts, &out)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		registry := mocks.NewRegistry()
		registry.SetTags(repo, "v1").SetManifest(repo, "v1", "d1")

		params.ConfigPath = writeConfig(`{"repos": ["windows/servercore"]}`)
		params.NewRegistry = func(string, time.Duration) (types.Registry, error) {
			return registry, nil
		}

		result, err := actions.Check(context.Background(), params)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(result.Summary.New).To(gomega.Equal(1))
		gomega.Expect(out.String()).To(gomega.ContainSubstring(`"run_id"`))
		gomega.Expect(opts.State.File).To(gomega.BeAnExistingFile())
	})
})
