// Package pipeline enchaîne les moteurs : nettoyage, filtres, puis agrégats / RFM / paniers /
// cohortes / prévision en parallèle, puis CLV.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sync"
	"time"

	"retail-analytics/pkg/aggregator"
	"retail-analytics/pkg/basket"
	"retail-analytics/pkg/cleaner"
	"retail-analytics/pkg/clv"
	"retail-analytics/pkg/cohort"
	"retail-analytics/pkg/filter"
	"retail-analytics/pkg/forecast"
	"retail-analytics/pkg/models"
	"retail-analytics/pkg/rfm"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

var log = logging.MustGetLogger("retail")

// Nombre d'étapes suivies par la barre de progression, hors backtest.
const stageCount = 7

// Options regroupe le paramétrage de tous les moteurs.
// LTV n'est calculée que si LTV.StartMonthInclusive est renseigné.
type Options struct {
	Filter        filter.Criteria
	ReferenceDate time.Time
	BinCount      int
	Segments      rfm.SegmentRules
	Basket        basket.Options
	Forecast      forecast.Options
	CLV           clv.Options
	LTV           models.LTVConfig
	Verbose       bool
}

func DefaultOptions() Options {
	return Options{
		BinCount: rfm.DefaultBinCount,
		Segments: rfm.DefaultSegmentRules(),
		Basket:   basket.DefaultOptions(),
		Forecast: forecast.DefaultOptions(),
		CLV:      clv.DefaultOptions(),
	}
}

// Report est le résultat complet d'un run.
type Report struct {
	RunID        string               `json:"run_id"`
	InputHash    string               `json:"input_hash"`
	Cleaning     cleaner.Report       `json:"cleaning"`
	Transactions []models.Transaction `json:"-"`
	Returns      []models.Transaction `json:"-"`
	Summary      aggregator.Summary   `json:"summary"`
	RFM          rfm.Result           `json:"rfm"`
	Basket       basket.Result        `json:"basket"`
	Cohorts      cohort.Matrix        `json:"cohorts"`
	LTV          []models.CohortLTV   `json:"ltv,omitempty"`
	Forecast     *forecast.Result     `json:"forecast,omitempty"` // nil si l'historique est trop court
	CLV          clv.Result           `json:"clv"`
	Backtest     *clv.Validation      `json:"backtest,omitempty"` // nil si désactivé ou sans fenêtre exploitable
	Issues       []models.Issue       `json:"issues"`
}

// Engine exécute des runs et garde en cache les rapports, par empreinte de l'entrée et des options.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*Report
}

func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*Report)}
}

// Run calcule (ou retourne depuis le cache) le rapport de raw.
// Chaque appel reçoit sa propre copie du rapport ; le modifier n'affecte ni le cache ni les autres appelants.
// Seule une ValidationError ou une option invalide fait échouer le run.
func (e *Engine) Run(ctx context.Context, raw models.RawTable, opts Options) (*Report, error) {
	key := Fingerprint(raw, opts)
	e.mu.Lock()
	if r, ok := e.cache[key]; ok {
		e.mu.Unlock()
		log.Debugf("pipeline: cache hit %s (run %s)", key[:12], r.RunID)
		return r.clone(), nil
	}
	e.mu.Unlock()

	r, err := run(ctx, raw, opts)
	if err != nil {
		return nil, err
	}
	r.InputHash = key

	e.mu.Lock()
	e.cache[key] = r
	e.mu.Unlock()
	return r.clone(), nil
}

// Len retourne le nombre de rapports en cache.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

func run(ctx context.Context, raw models.RawTable, opts Options) (*Report, error) {
	segments, err := rfm.NewSegmentTable(opts.Segments, binCount(opts))
	if err != nil {
		return nil, fmt.Errorf("segments: %w", err)
	}

	r := &Report{RunID: uuid.NewString()}
	var bar *progressbar.ProgressBar
	if opts.Verbose {
		stages := int64(stageCount)
		if opts.CLV.BacktestMonths > 0 {
			stages++
		}
		bar = progressbar.Default(stages, "analytics")
	}
	step := func() {
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	cleaned, err := cleaner.Clean(raw)
	if err != nil {
		return nil, err
	}
	step()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.Cleaning = cleaned.Report
	r.Transactions = filter.Apply(cleaned.Transactions, opts.Filter)
	r.Returns = cleaned.Returns
	if !opts.Filter.IsZero() {
		log.Infof("run %s: filtres appliqués, %d/%d lignes retenues", r.RunID, len(r.Transactions), len(cleaned.Transactions))
	}
	txs := r.Transactions

	var forecastIssues, backtestIssues []models.Issue
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r.Summary = aggregator.Summarize(txs)
		step()
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		res, err := rfm.Compute(txs, rfm.Options{ReferenceDate: opts.ReferenceDate, BinCount: binCount(opts), Segments: segments})
		if err != nil {
			return fmt.Errorf("rfm: %w", err)
		}
		r.RFM = res
		step()
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		res, err := basket.Mine(txs, opts.Basket)
		if err != nil {
			return fmt.Errorf("basket: %w", err)
		}
		r.Basket = res
		step()
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		r.Cohorts = cohort.Build(txs)
		if opts.LTV.StartMonthInclusive != "" {
			ltv, err := cohort.LTV(txs, opts.LTV)
			if err != nil {
				return fmt.Errorf("ltv: %w", err)
			}
			r.LTV = ltv
		}
		step()
		return nil
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		res, err := forecast.Project(aggregator.MonthlyTable(txs), opts.Forecast)
		switch {
		case errors.Is(err, forecast.ErrInsufficientHistory):
			forecastIssues = append(forecastIssues, models.Warning("forecast", "insufficient_history", 0,
				"no forecast: %v", err))
		case err != nil:
			return fmt.Errorf("forecast: %w", err)
		default:
			r.Forecast = &res
			forecastIssues = res.Issues
		}
		step()
		return nil
	})
	if opts.CLV.BacktestMonths > 0 {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := clv.Backtest(txs, opts.CLV)
			switch {
			case errors.Is(err, clv.ErrBacktestUnavailable):
				backtestIssues = append(backtestIssues, models.Degraded("clv", "backtest_unavailable",
					"no model validation: %v", err))
			case err != nil:
				return fmt.Errorf("backtest: %w", err)
			default:
				r.Backtest = &v
			}
			step()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scores, err := clv.Score(r.RFM.Profiles, r.Summary.Overview, opts.CLV)
	if err != nil {
		return nil, fmt.Errorf("clv: %w", err)
	}
	r.CLV = scores
	step()

	r.Issues = append(r.Issues, r.Cleaning.Issues...)
	r.Issues = append(r.Issues, r.RFM.Issues...)
	r.Issues = append(r.Issues, r.Basket.Issues...)
	r.Issues = append(r.Issues, r.Cohorts.Issues...)
	r.Issues = append(r.Issues, forecastIssues...)
	r.Issues = append(r.Issues, r.CLV.Issues...)
	r.Issues = append(r.Issues, backtestIssues...)

	log.Infof("run %s: %d transactions, %d clients, %d règles, %d anomalies",
		r.RunID, len(txs), len(r.RFM.Profiles), len(r.Basket.Rules), len(r.Issues))
	return r, nil
}

func binCount(opts Options) int {
	if opts.BinCount == 0 {
		return rfm.DefaultBinCount
	}
	return opts.BinCount
}

// Fingerprint calcule l'empreinte SHA-256 de la table brute et des options d'analyse.
func Fingerprint(raw models.RawTable, opts Options) string {
	h := sha256.New()
	writeTable(h, raw)
	o := opts
	o.Verbose = false
	o.LTV.Verbose = false
	fmt.Fprintf(h, "\x1d%+v", o)
	return hex.EncodeToString(h.Sum(nil))
}

func writeTable(h hash.Hash, raw models.RawTable) {
	fmt.Fprintf(h, "%q\x1e", raw.Columns)
	for _, row := range raw.Rows {
		for _, c := range row {
			fmt.Fprintf(h, "%T=%v\x1f", c, c)
		}
		h.Write([]byte{0x1e})
	}
}
