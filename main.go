package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"retail-analytics/pkg/aggregator"
	"retail-analytics/pkg/config"
	"retail-analytics/pkg/database"
	"retail-analytics/pkg/export"
	"retail-analytics/pkg/ingest"
	"retail-analytics/pkg/logger"
	"retail-analytics/pkg/models"
	"retail-analytics/pkg/pipeline"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

func main() {
	// Les flags renseignés priment sur le fichier de configuration et l'environnement
	configPath := flag.String("config", os.Getenv("RETAIL_CONFIG"), "Fichier de configuration JSON/YAML")
	csvPath := flag.String("csv", "", "Fichier CSV de transactions")
	dsn := flag.String("dsn", "", "DSN SQL (mariadb://, postgres://, sqlite://)")
	table := flag.String("table", "", "Table des transactions")
	outDir := flag.String("out", "", "Dossier de sortie des tables JSON")
	ref := flag.String("ref", "", "Date de référence RFM (YYYY-MM-DD)")
	startMonth := flag.String("start_month", "", "Mois de début LTV (MMYYYY)")
	endMonth := flag.String("end_month", "", "Mois de fin LTV (MMYYYY)")
	verbose := flag.Bool("v", false, "Mode verbeux")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Source.CSV, *csvPath)
	override(&cfg.Source.DSN, *dsn)
	override(&cfg.Source.Table, *table)
	override(&cfg.Output.Dir, *outDir)
	override(&cfg.RFM.ReferenceDate, *ref)
	override(&cfg.LTV.StartMonth, *startMonth)
	override(&cfg.LTV.EndMonth, *endMonth)
	if *verbose {
		cfg.Verbose = true
		cfg.LogLevel = "DEBUG"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.InitWithWriter(os.Stderr, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "log level %q: %v\n", cfg.LogLevel, err)
		os.Exit(1)
	}

	opts, err := cfg.PipelineOptions()
	if err != nil {
		log.Fatalf("options: %v", err)
	}
	if opts.LTV.StartMonthInclusive != "" {
		// Observation = 1er jour du mois courant (UTC)
		now := time.Now().UTC()
		opts.LTV.Observation = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	raw, err := load(ctx, cfg)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	report, err := pipeline.NewEngine().Run(ctx, raw, opts)
	if err != nil {
		log.Fatalf("compute: %v", err)
	}
	for i, g := range aggregator.TopGroups(report.Summary.Products, 5) {
		log.Infof("top produit #%d %s (%s) : CA=%.2f commandes=%d", i+1, g.Key, g.Label, g.Revenue, g.OrderCount)
	}
	for _, is := range report.Issues {
		log.Warningf("[%s] %s/%s: %s", is.Kind, is.Source, is.Code, is.Message)
	}

	artifacts := report.Artifacts()
	if _, err := export.WriteArtifacts(cfg.Output.Dir, artifacts, time.Now()); err != nil {
		log.Fatalf("export: %v", err)
	}
	if cfg.Output.AMQPURL != "" {
		if err := publish(ctx, cfg, report.RunID, artifacts); err != nil {
			log.Fatalf("publish: %v", err)
		}
	}

	// Sortie LTV : MM/YYYY ; LTV ; cohort_clients ; events
	for _, r := range report.LTV {
		fmt.Printf("%s ; %.15f ; cohort_clients=%d ; events=%d\n",
			r.MonthYear, r.LTVAvg, r.CohortClients, r.EventsRead)
	}
}

func override(dst *string, flagValue string) {
	if flagValue != "" {
		*dst = flagValue
	}
}

func load(ctx context.Context, cfg *config.Config) (models.RawTable, error) {
	switch {
	case cfg.Source.CSV != "":
		return ingest.ReadCSVFile(cfg.Source.CSV)
	case cfg.Source.DSN != "":
		db, driver, _, err := database.Open(cfg.Source.DSN)
		if err != nil {
			return models.RawTable{}, fmt.Errorf("open db: %w", err)
		}
		defer db.Close()
		log.Infof("connected driver=%s table=%s", driver, cfg.Source.Table)
		return database.LoadTransactions(ctx, db, cfg.Source.Table)
	default:
		return models.RawTable{}, fmt.Errorf("no source: set source.csv or source.dsn (-csv / -dsn)")
	}
}

func publish(ctx context.Context, cfg *config.Config, runID string, artifacts []models.Artifact) error {
	p, err := export.DialPublisher(cfg.Output.AMQPURL, cfg.Output.Exchange)
	if err != nil {
		return err
	}
	defer p.Close()
	return p.Publish(ctx, runID, artifacts)
}
