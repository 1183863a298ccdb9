package exporter

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/pixelfederation/eks-automode-estimator/report"
)

const namespace = "eks_automode"

// RunFunc produces one estimate, typically (*pipeline.Pipeline).Run.
type RunFunc func(ctx context.Context) (report.Report, error)

// Exporter implements the prometheus.Collector interface, and exports the EKS Auto Mode cost estimate of one cluster.
type Exporter struct {
	cluster         string
	run             RunFunc
	timeout         time.Duration
	duration        prometheus.Gauge
	scrapeErrors    prometheus.Gauge
	totalScrapes    prometheus.Counter
	estimateMetrics map[string]*prometheus.GaugeVec
	cache           int
	nextScrape      time.Time
	mu              sync.Mutex
}

type scrapeResult struct {
	Name         string
	Value        float64
	Region       string
	InstanceType string
	PriceSource  string
}

var estimateLabels = []string{"cluster", "region", "instance_type", "price_source"}

var estimateHelp = map[string]string{
	"current_monthly_cost_usd":      "Current monthly cost of the cluster's control plane and worker nodes.",
	"automode_monthly_cost_usd":     "Projected monthly cost of the cluster under EKS Auto Mode.",
	"infra_savings_usd":             "Projected monthly infrastructure savings, negative when Auto Mode costs more.",
	"total_savings_usd":             "Projected monthly savings including operational time.",
	"estimated_nodes":               "Nodes needed under EKS Auto Mode.",
	"current_nodes":                 "Worker nodes currently running.",
	"discount_factor":               "Billed EC2 spend over its On-Demand equivalent.",
	"ec2_hourly_price_usd":          "EC2 hourly price of the primary instance type.",
	"automode_fee_hourly_price_usd": "EKS Auto Mode hourly fee of the primary instance type.",
}

// NewExporter returns a new exporter running run at most once per cache seconds.
func NewExporter(cluster string, run RunFunc, cache int, timeout time.Duration) *Exporter {
	e := Exporter{
		cluster:    cluster,
		run:        run,
		timeout:    timeout,
		cache:      cache,
		nextScrape: time.Now(),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scrape_duration_seconds",
			Help:      "The scrape duration.",
		}),
		totalScrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scrapes_total",
			Help:      "Total estimate runs.",
		}),
		scrapeErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scrape_error",
			Help:      "The scrape error status.",
		}),
	}
	if e.timeout <= 0 {
		e.timeout = 5 * time.Minute
	}
	e.initGauges()
	return &e
}

func (e *Exporter) initGauges() {
	e.estimateMetrics = map[string]*prometheus.GaugeVec{}
	for name, help := range estimateHelp {
		e.estimateMetrics[name] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, estimateLabels)
	}
}

// resetGauges clears all existing gauge values without replacing the registered GaugeVec objects.
func (e *Exporter) resetGauges() {
	for _, m := range e.estimateMetrics {
		m.Reset()
	}
}

// Describe outputs metric descriptions.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range e.estimateMetrics {
		m.Describe(ch)
	}
	ch <- e.duration.Desc()
	ch <- e.totalScrapes.Desc()
	ch <- e.scrapeErrors.Desc()
}

// Collect runs the estimate when the cache has expired and outputs the last values.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().After(e.nextScrape) {
		scrapes := make(chan scrapeResult)

		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		go e.scrape(ctx, scrapes)
		e.setEstimateMetrics(scrapes)

		e.nextScrape = time.Now().Add(time.Second * time.Duration(e.cache))
	}

	e.duration.Collect(ch)
	e.totalScrapes.Collect(ch)
	e.scrapeErrors.Collect(ch)

	for _, m := range e.estimateMetrics {
		m.Collect(ch)
	}
}

func (e *Exporter) scrape(ctx context.Context, scrapes chan<- scrapeResult) {
	defer close(scrapes)
	now := time.Now()
	defer func() { e.duration.Set(time.Since(now).Seconds()) }()

	e.totalScrapes.Inc()

	rep, err := e.run(ctx)
	if err != nil {
		log.WithError(err).Errorf("estimate failed, keeping previous values [cluster=%s]", e.cluster)
		e.scrapeErrors.Set(1)
		return
	}
	e.scrapeErrors.Set(0)

	in, q, c := rep.Input, rep.Quote, rep.Cost
	base := scrapeResult{Region: in.Region, InstanceType: in.InstanceType, PriceSource: q.Source.String()}
	for name, value := range map[string]float64{
		"current_monthly_cost_usd":      c.CurrentMonthly,
		"automode_monthly_cost_usd":     c.AutoMonthly,
		"infra_savings_usd":             c.InfraSavings,
		"total_savings_usd":             c.TotalSavings,
		"estimated_nodes":               float64(c.EstimatedAutoNodes),
		"current_nodes":                 float64(in.NodeCount),
		"discount_factor":               c.DiscountFactor,
		"ec2_hourly_price_usd":          q.EC2Hourly,
		"automode_fee_hourly_price_usd": q.AutoModeFeeHourly,
	} {
		scr := base
		scr.Name, scr.Value = name, value
		scrapes <- scr
	}
}

// setEstimateMetrics replaces the gauges with a fresh set when at least one
// result arrives, so a failed run leaves the previous estimate visible.
func (e *Exporter) setEstimateMetrics(scrapes <-chan scrapeResult) {
	first := true
	for scr := range scrapes {
		if first {
			e.resetGauges()
			first = false
		}
		m, ok := e.estimateMetrics[scr.Name]
		if !ok {
			log.Warnf("unknown estimate metric [name=%s]", scr.Name)
			continue
		}
		m.With(prometheus.Labels{
			"cluster":       e.cluster,
			"region":        scr.Region,
			"instance_type": scr.InstanceType,
			"price_source":  scr.PriceSource,
		}).Set(scr.Value)
	}
}
