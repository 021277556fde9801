// Package config charge la configuration (fichier JSON/YAML + variables d'environnement RETAIL_*).
package config

import (
	"fmt"
	"strings"
	"time"

	"retail-analytics/pkg/basket"
	"retail-analytics/pkg/clv"
	"retail-analytics/pkg/filter"
	"retail-analytics/pkg/forecast"
	"retail-analytics/pkg/models"
	"retail-analytics/pkg/pipeline"
	"retail-analytics/pkg/rfm"

	"github.com/spf13/viper"
)

const envPrefix = "RETAIL"

// Config représente la configuration de l'application.
type Config struct {
	LogLevel string         `json:"log-level" mapstructure:"log-level"`
	Verbose  bool           `json:"verbose" mapstructure:"verbose"`
	Source   SourceConfig   `json:"source" mapstructure:"source"`
	Output   OutputConfig   `json:"output" mapstructure:"output"`
	Filter   FilterConfig   `json:"filter" mapstructure:"filter"`
	RFM      RFMConfig      `json:"rfm" mapstructure:"rfm"`
	Basket   BasketConfig   `json:"basket" mapstructure:"basket"`
	Forecast ForecastConfig `json:"forecast" mapstructure:"forecast"`
	CLV      CLVConfig      `json:"clv" mapstructure:"clv"`
	LTV      LTVConfig      `json:"ltv" mapstructure:"ltv"`
}

type SourceConfig struct {
	CSV   string `json:"csv" mapstructure:"csv"`
	DSN   string `json:"dsn" mapstructure:"dsn"`
	Table string `json:"table" mapstructure:"table"`
}

type OutputConfig struct {
	Dir      string `json:"dir" mapstructure:"dir"`
	AMQPURL  string `json:"amqp-url" mapstructure:"amqp-url"`
	Exchange string `json:"exchange" mapstructure:"exchange"`
}

type FilterConfig struct {
	Countries []string `json:"countries" mapstructure:"countries"`
	Customers []string `json:"customers" mapstructure:"customers"`
	Start     string   `json:"start" mapstructure:"start"` // YYYY-MM-DD, inclus
	End       string   `json:"end" mapstructure:"end"`     // YYYY-MM-DD, exclu
}

type RFMConfig struct {
	ReferenceDate string `json:"reference-date" mapstructure:"reference-date"`
	BinCount      int    `json:"bin-count" mapstructure:"bin-count"`
	SegmentsFile  string `json:"segments-file" mapstructure:"segments-file"`
}

type BasketConfig struct {
	MinSupport     float64 `json:"min-support" mapstructure:"min-support"`
	MinConfidence  float64 `json:"min-confidence" mapstructure:"min-confidence"`
	MinLift        float64 `json:"min-lift" mapstructure:"min-lift"`
	MaxItemsetSize int     `json:"max-itemset-size" mapstructure:"max-itemset-size"`
	MaxRules       int     `json:"max-rules" mapstructure:"max-rules"`
}

type ForecastConfig struct {
	HorizonMonths int     `json:"horizon-months" mapstructure:"horizon-months"`
	MinPeriods    int     `json:"min-periods" mapstructure:"min-periods"`
	BandFraction  float64 `json:"band-fraction" mapstructure:"band-fraction"`
	Z             float64 `json:"z" mapstructure:"z"`
}

type CLVConfig struct {
	HighRisk         float64 `json:"high-risk" mapstructure:"high-risk"`
	MediumRisk       float64 `json:"medium-risk" mapstructure:"medium-risk"`
	ProjectionMonths int     `json:"projection-months" mapstructure:"projection-months"`
	BacktestMonths   int     `json:"backtest-months" mapstructure:"backtest-months"` // 0 : pas de backtest
}

type LTVConfig struct {
	StartMonth string `json:"start-month" mapstructure:"start-month"` // MMYYYY
	EndMonth   string `json:"end-month" mapstructure:"end-month"`     // MMYYYY
}

// field: default value
var defaults = map[string]any{
	"log-level":               "INFO",
	"verbose":                 false,
	"source.csv":              "",
	"source.dsn":              "",
	"source.table":            "transactions",
	"output.dir":              "out",
	"output.amqp-url":         "",
	"output.exchange":         "retail-analytics",
	"filter.countries":        []string{},
	"filter.customers":        []string{},
	"filter.start":            "",
	"filter.end":              "",
	"rfm.reference-date":      "",
	"rfm.bin-count":           rfm.DefaultBinCount,
	"rfm.segments-file":       "",
	"basket.min-support":      basket.DefaultOptions().MinSupport,
	"basket.min-confidence":   basket.DefaultOptions().MinConfidence,
	"basket.min-lift":         basket.DefaultOptions().MinLift,
	"basket.max-itemset-size": basket.DefaultOptions().MaxItemsetSize,
	"basket.max-rules":        basket.DefaultOptions().MaxRules,
	"forecast.horizon-months": forecast.DefaultOptions().HorizonMonths,
	"forecast.min-periods":    forecast.DefaultOptions().MinPeriods,
	"forecast.band-fraction":  forecast.DefaultOptions().BandFraction,
	"forecast.z":              forecast.DefaultOptions().Z,
	"clv.high-risk":           clv.DefaultOptions().Thresholds.HighRisk,
	"clv.medium-risk":         clv.DefaultOptions().Thresholds.MediumRisk,
	"clv.projection-months":   clv.DefaultOptions().ProjectionMonths,
	"clv.backtest-months":     clv.DefaultOptions().BacktestMonths,
	"ltv.start-month":         "",
	"ltv.end-month":           "",
}

// Load lit la configuration depuis path (optionnel) puis l'environnement.
// Les variables d'environnement priment sur le fichier : rfm.bin-count → RETAIL_RFM_BIN_COUNT.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate vérifie les valeurs qui ne dépendent d'aucun moteur.
func (c *Config) Validate() error {
	if c.Source.CSV != "" && c.Source.DSN != "" {
		return fmt.Errorf("config: source.csv and source.dsn are mutually exclusive")
	}
	for key, value := range map[string]string{
		"rfm.reference-date": c.RFM.ReferenceDate,
		"filter.start":       c.Filter.Start,
		"filter.end":         c.Filter.End,
	} {
		if _, err := parseDate(value); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	if (c.LTV.StartMonth == "") != (c.LTV.EndMonth == "") {
		return fmt.Errorf("config: ltv.start-month and ltv.end-month must be set together")
	}
	return nil
}

// PipelineOptions convertit la configuration en options d'analyse et charge les règles de segments.
func (c *Config) PipelineOptions() (pipeline.Options, error) {
	ref, err := parseDate(c.RFM.ReferenceDate)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("rfm.reference-date: %w", err)
	}
	start, err := parseDate(c.Filter.Start)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("filter.start: %w", err)
	}
	end, err := parseDate(c.Filter.End)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("filter.end: %w", err)
	}
	segments, err := rfm.LoadSegmentRules(c.RFM.SegmentsFile)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		Filter: filter.Criteria{
			Countries:   c.Filter.Countries,
			CustomerIDs: c.Filter.Customers,
			Start:       start,
			End:         end,
		},
		ReferenceDate: ref,
		BinCount:      c.RFM.BinCount,
		Segments:      segments,
		Basket: basket.Options{
			MinSupport:     c.Basket.MinSupport,
			MinConfidence:  c.Basket.MinConfidence,
			MinLift:        c.Basket.MinLift,
			MaxItemsetSize: c.Basket.MaxItemsetSize,
			MaxRules:       c.Basket.MaxRules,
		},
		Forecast: forecast.Options{
			HorizonMonths: c.Forecast.HorizonMonths,
			MinPeriods:    c.Forecast.MinPeriods,
			BandFraction:  c.Forecast.BandFraction,
			Z:             c.Forecast.Z,
		},
		CLV: clv.Options{
			Thresholds: clv.Thresholds{
				HighRisk:   c.CLV.HighRisk,
				MediumRisk: c.CLV.MediumRisk,
			},
			ProjectionMonths: c.CLV.ProjectionMonths,
			BacktestMonths:   c.CLV.BacktestMonths,
		},
		LTV: models.LTVConfig{
			StartMonthInclusive: c.LTV.StartMonth,
			EndMonthInclusive:   c.LTV.EndMonth,
			Verbose:             c.Verbose,
		},
		Verbose: c.Verbose,
	}, nil
}

// parseDate accepte YYYY-MM-DD ou RFC3339 ; une chaîne vide donne la date nulle.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD or RFC3339)", s)
	}
	return t.UTC(), nil
}
