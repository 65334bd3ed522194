package matching

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/vine/pkg/models"
	"github.com/Ramsey-B/vine/pkg/tracing"
)

const defaultIndexPageSize = 500

// CatalogSource pages the read-only master catalog by id.
type CatalogSource interface {
	ListProducts(ctx context.Context, afterID string, limit int) ([]models.CatalogProduct, error)
}

// IndexWriter swaps the derived match index in one transaction.
type IndexWriter interface {
	ReplaceIndex(ctx context.Context, entries []ProductKeys) error
}

// Indexer rebuilds the blocking and identifier index from the catalog.
type Indexer struct {
	log      ectologger.Logger
	source   CatalogSource
	writer   IndexWriter
	scorer   *Scorer
	pageSize int
}

func NewIndexer(log ectologger.Logger, source CatalogSource, writer IndexWriter, pageSize int) *Indexer {
	if pageSize <= 0 {
		pageSize = defaultIndexPageSize
	}
	return &Indexer{
		log:      log,
		source:   source,
		writer:   writer,
		scorer:   NewScorer(),
		pageSize: pageSize,
	}
}

// Rebuild returns the number of products indexed.
func (i *Indexer) Rebuild(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Indexer.Rebuild")
	defer span.End()

	var entries []ProductKeys
	after := ""
	for {
		page, err := i.source.ListProducts(ctx, after, i.pageSize)
		if err != nil {
			return 0, errors.Wrap(err, "failed to page catalog")
		}
		for _, p := range page {
			entries = append(entries, IndexProduct(p, i.scorer))
		}
		if len(page) < i.pageSize {
			break
		}
		after = page[len(page)-1].ID
	}

	if err := i.writer.ReplaceIndex(ctx, entries); err != nil {
		return 0, errors.Wrap(err, "failed to replace catalog index")
	}

	i.log.WithContext(ctx).WithField("products", len(entries)).Info("Rebuilt catalog match index")
	return len(entries), nil
}
