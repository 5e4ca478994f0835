// Package batch feeds delimited record streams through the scoring
// engine and folds the outcomes into a run summary.
package batch

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/engine"
)

// Column positions of the batch contract. A header row is assumed
// present and is never evaluated.
const (
	colID = iota
	colAmount
	colType
	colDescription
	colSenderID
	colReceiverID
)

// rowDefaults declares the fallback for each field of a malformed or
// partial row. Defaulting is the whole of the error handling here: a bad
// row degrades, it never aborts the batch.
var rowDefaults = struct {
	Amount          float64
	Type            domain.TransactionType
	SenderID        string
	ReceiverID      string
	BeneficiaryType domain.BeneficiaryType
}{
	Amount:          0,
	Type:            domain.TypeDebit,
	SenderID:        "user_victim_01",
	ReceiverID:      "user_scammer_01",
	BeneficiaryType: domain.BeneficiaryIndividual,
}

const defaultWorkers = 8

// Pipeline runs batch uploads through the engine. Rows are scored in
// parallel; summary counters and the report are reduced afterwards in a
// single pass that preserves input order.
type Pipeline struct {
	engine  *engine.Engine
	workers int
}

// NewPipeline creates a batch pipeline over the given engine.
func NewPipeline(eng *engine.Engine, workers int) *Pipeline {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Pipeline{engine: eng, workers: workers}
}

// Process parses a raw newline/comma delimited blob and scores each data
// row. TotalProcessed counts every line after the header, including rows
// skipped as malformed; the detailed report holds only non-ALLOW results,
// in record order.
func (p *Pipeline) Process(ctx context.Context, raw string) (*domain.BatchSummary, []*domain.AnalysisResult, error) {
	rows := strings.Split(raw, "\n")

	summary := &domain.BatchSummary{}
	if len(rows) < 2 {
		return summary, nil, nil
	}
	summary.TotalProcessed = len(rows) - 1

	now := time.Now().UTC()

	// Map the data rows first; nil marks a skipped row.
	txs := make([]*domain.Transaction, len(rows)-1)
	for i, row := range rows[1:] {
		txs[i] = mapRow(row, now)
	}

	// Score rows in parallel. Each row is independent; the indexed
	// results slice keeps input order for the reduce below.
	results := make([]*domain.AnalysisResult, len(txs))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, tx := range txs {
		if tx == nil {
			continue
		}
		wg.Add(1)
		go func(idx int, tx *domain.Transaction) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := p.engine.AnalyzeTransaction(ctx, tx)
			if err != nil {
				// Row-local failure: skip and continue.
				return
			}
			results[idx] = res
		}(i, tx)
	}

	wg.Wait()

	var report []*domain.AnalysisResult
	for i, res := range results {
		if res == nil || res.Verdict == domain.VerdictAllow {
			continue
		}
		summary.FraudDetected++
		summary.TotalSaved += txs[i].Amount
		report = append(report, res)
	}

	return summary, report, nil
}

// mapRow converts one CSV record into a transaction, substituting the
// declared defaults for missing or unparseable fields. Rows with fewer
// than two fields are treated as blank and return nil.
func mapRow(row string, now time.Time) *domain.Transaction {
	fields := strings.Split(row, ",")
	if len(fields) < 2 {
		return nil
	}

	typ := rowDefaults.Type
	if s := field(fields, colType); s != "" {
		typ = domain.ParseTransactionType(s)
	}

	tx := &domain.Transaction{
		ID:              field(fields, colID),
		Amount:          parseAmount(field(fields, colAmount)),
		Type:            typ,
		Description:     field(fields, colDescription),
		SenderID:        field(fields, colSenderID),
		ReceiverID:      field(fields, colReceiverID),
		BeneficiaryType: rowDefaults.BeneficiaryType,
		Timestamp:       now,
	}

	// The engine rejects identity-less transactions; a batch row must
	// still yield a verdict, so supply one.
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.SenderID == "" {
		tx.SenderID = rowDefaults.SenderID
	}
	if tx.ReceiverID == "" {
		tx.ReceiverID = rowDefaults.ReceiverID
	}

	return tx
}

func field(fields []string, i int) string {
	if i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func parseAmount(s string) float64 {
	amount, err := strconv.ParseFloat(s, 64)
	if err != nil || amount < 0 {
		return rowDefaults.Amount
	}
	return amount
}
