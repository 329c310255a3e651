package cmd

import (
	"os"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholas-fedor/tagwatch/internal/flags"
	"github.com/nicholas-fedor/tagwatch/internal/lambda"
	"github.com/nicholas-fedor/tagwatch/internal/meta"
	"github.com/nicholas-fedor/tagwatch/pkg/registry"
)

// newLambdaCommand creates the subcommand hosting tagwatch in the AWS Lambda runtime.
//
// Settings are read from the environment only; each invocation performs one run.
func newLambdaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Runs tagwatch as an AWS Lambda function",
		Long: "\nStarts the AWS Lambda runtime loop. Every invocation, typically from an EventBridge\n" +
			"schedule, performs one check run configured through TAGWATCH_* environment variables.",
		Args:   cobra.NoArgs,
		PreRun: lambdaPreRun,
		Run:    runLambda,
	}
}

func lambdaPreRun(cmd *cobra.Command, _ []string) {
	if err := flags.SetupLogging(cmd.Root().PersistentFlags()); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize logging")
	}

	registry.UserAgent = meta.UserAgent
}

func runLambda(_ *cobra.Command, _ []string) {
	opts, err := flags.EnvOptions()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid check settings")
	}

	logrus.WithField("version", meta.Version).Info("Starting Lambda runtime")

	handler := lambda.New(opts, os.Stdout)
	awslambda.Start(handler.Handle)
}
