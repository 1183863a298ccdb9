package cmd

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pixelfederation/eks-automode-estimator/exporter"
	"github.com/pixelfederation/eks-automode-estimator/pipeline"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	addr        string
	metricsPath string
	cache       int
	collect     collectOptions
	pricing     pricingOptions
}

func newServeCommand(root *rootOptions) *cobra.Command {
	o := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Export the Auto Mode estimate of a cluster as Prometheus metrics",
		Long: `Serve re-runs collect and estimate at most once per --cache seconds and
exports the result under the eks_automode namespace. A failed run sets
eks_automode_scrape_error and keeps the previous estimate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if o.cache < 0 {
				return fmt.Errorf("%w: --cache must not be negative, got %d", errInvalidFlag, o.cache)
			}

			collect, err := o.collect.collectFunc(ctx)
			if err != nil {
				return err
			}
			resolver, err := o.pricing.resolver(ctx, false)
			if err != nil {
				return err
			}
			p := &pipeline.Pipeline{Collect: collect, Resolver: resolver, Region: o.collect.regionOrDefault()}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				exporter.NewExporter(o.collect.cluster, p.Run, o.cache, root.timeout),
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			log.Infof("Starting EKS Auto Mode estimate exporter. [source=%s, cluster=%s, region=%s, cache=%d]",
				o.collect.source, o.collect.cluster, o.collect.regionOrDefault(), o.cache)
			return serve(ctx, newServer(o.addr, o.metricsPath, reg))
		},
	}
	cmd.Flags().StringVar(&o.addr, "listen-address", ":8080", "The address to listen on for HTTP requests.")
	cmd.Flags().StringVar(&o.metricsPath, "metrics-path", "/metrics", "path to metrics endpoint")
	cmd.Flags().IntVar(&o.cache, "cache", 300, "How long should the estimate be cached, in seconds")
	o.collect.bindSource(cmd)
	o.collect.bindAWS(cmd)
	o.collect.bindKube(cmd)
	o.pricing.bind(cmd)
	return cmd
}

func newServer(addr, metricsPath string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", rootHandler(metricsPath))

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

// serve blocks until ctx is cancelled or the listener fails.
func serve(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		log.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Graceful shutdown failed")
		}
	}()

	log.Infof("Starting metric http endpoint [address=%s]", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func rootHandler(metricsPath string) http.HandlerFunc {
	safePath := html.EscapeString(metricsPath)
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<html>
		<head><title>EKS Auto Mode Estimator</title></head>
		<body>
		<h1>EKS Auto Mode Estimator</h1>
		<p><a href="` + safePath + `">Metrics</a></p>
		</body>
		</html>
	`))
	}
}
