package infrastructure

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"higgs-distributed/internal/domain"
	"higgs-distributed/pkg/physics"
)

type FmtFunc func(float64) string

// TXTHistogramWriter writes the per-group mass histograms as one
// tab-separated table: the lower bin edge, then one column per group.
type TXTHistogramWriter struct {
	logger   *zap.Logger
	filename string
	physics  domain.PhysicsConfig
	format   FmtFunc
}

func NewTXTHistogramWriter(logger *zap.Logger, filename string, cfg domain.PhysicsConfig) *TXTHistogramWriter {
	return &TXTHistogramWriter{
		logger:   logger,
		filename: filename,
		physics:  cfg,
		format: func(val float64) string {
			return strconv.FormatFloat(val, 'f', 4, 64)
		},
	}
}

// Report implements domain.Reporter.
func (w *TXTHistogramWriter) Report(collections map[string]*domain.Collection, order []string) error {
	edges, err := physics.BinEdges(w.physics.MassMin, w.physics.MassMax, w.physics.BinWidth)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrReportFailed, err)
	}

	hists := make([]domain.Histogram, len(order))
	for i, group := range order {
		masses, weights, err := collections[group].Columns()
		if err != nil {
			return fmt.Errorf("%w: group %s: %w", domain.ErrReportFailed, group, err)
		}
		if hists[i], err = physics.WeightedHistogram(masses, weights, edges); err != nil {
			return fmt.Errorf("%w: group %s: %w", domain.ErrReportFailed, group, err)
		}
	}

	if err := w.WriteHistograms(w.filename, order, hists); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrReportFailed, err)
	}
	w.logger.Info("Histograms written",
		zap.String("file", w.filename),
		zap.Int("groups", len(order)),
		zap.Int("bins", len(edges)-1))
	return nil
}

func (w *TXTHistogramWriter) WriteHistograms(filename string, labels []string, hists []domain.Histogram) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	// Заголовок: нижняя граница бина и имена групп
	fmt.Fprintf(writer, "Mass\t%s\n", strings.Join(labels, "\t"))

	if len(hists) > 0 {
		for bin := 0; bin < hists[0].Len(); bin++ {
			row := make([]string, len(hists))
			for i, h := range hists {
				row[i] = w.format(h.Counts[bin])
			}
			edge := strconv.FormatFloat(hists[0].Edges[bin], 'f', 2, 64)
			fmt.Fprintf(writer, "%s\t%s\n", edge, strings.Join(row, "\t"))
		}
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	return file.Close()
}
