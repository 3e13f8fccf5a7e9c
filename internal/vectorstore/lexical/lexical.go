package lexical

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"

	"resumerag/internal/vectorstore"
)

const textField = "text"

// Index is a per-session in-memory BM25 index over chunk text, queried when
// the embedding has nothing to say about a query.
type Index struct {
	bleve bleve.Index
}

func NewIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create lexical index: %w", err)
	}
	return &Index{bleve: idx}, nil
}

// Add indexes the text of a chunk under its id.
func (i *Index) Add(id int, text string) error {
	return i.bleve.Index(strconv.Itoa(id), map[string]interface{}{textField: text})
}

// Search returns up to topK chunk ids ranked by BM25 score, ties broken by ascending id.
func (i *Index) Search(query string, topK int) ([]vectorstore.Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	q.SetField(textField)
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)
	res, err := i.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	out := make([]vectorstore.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		out = append(out, vectorstore.Hit{ID: id, Score: h.Score})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (i *Index) Len() int {
	n, err := i.bleve.DocCount()
	if err != nil {
		return 0
	}
	return int(n)
}

func (i *Index) Close() error {
	return i.bleve.Close()
}
