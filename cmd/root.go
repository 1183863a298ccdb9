// Package cmd holds the eks-automode-estimator commands.
package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/eks-automode-estimator/pricing"
	"github.com/pixelfederation/eks-automode-estimator/sizing"
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitInvalid = 2
)

const defaultTimeout = 5 * time.Minute

var errInvalidFlag = errors.New("invalid flag")

type rootOptions struct {
	logLevel string
	timeout  time.Duration
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "eks-automode-estimator",
		Short: "Estimate the cost of moving an EKS cluster to Auto Mode",
		Long: `eks-automode-estimator compares the monthly cost of an EKS cluster with the
cost of the same workload under EKS Auto Mode.

Collectors print shell export lines that the estimate command reads back:

  eval "$(eks-automode-estimator collect aws --cluster prod --region eu-west-1)"
  eks-automode-estimator estimate

Exit codes:
  0 - Success
  1 - Runtime failure (AWS or Kubernetes API, I/O)
  2 - Malformed input or no price found for the instance type`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setLogLevel(o.logLevel)
		},
	}
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "info", "log level")
	root.PersistentFlags().DurationVar(&o.timeout, "timeout", defaultTimeout, "Deadline for collecting and pricing a cluster")

	root.AddCommand(
		newCollectCommand(o),
		newEstimateCommand(o),
		newAnalyzeCommand(o),
		newServeCommand(o),
	)
	return root
}

// Execute runs the command tree until it finishes or SIGINT/SIGTERM arrives
// and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		log.WithError(err).Error("Command failed")
	}
	return ExitCode(err)
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, sizing.ErrMalformedInput),
		errors.Is(err, pricing.ErrUnresolvablePrice),
		errors.Is(err, errInvalidFlag):
		return ExitInvalid
	default:
		return ExitFailure
	}
}

func setLogLevel(raw string) {
	parsedLevel, err := log.ParseLevel(raw)
	if err != nil {
		log.WithError(err).Warnf("Couldn't parse log level, using default: %s", log.GetLevel())
		return
	}
	log.SetLevel(parsedLevel)
	log.Debugf("Set log level to %s", parsedLevel)
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}
