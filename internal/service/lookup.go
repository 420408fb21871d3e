package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/RoaringBitmap/roaring"
	"github.com/agnivade/levenshtein"

	"insight-gateway/internal/database/index"
	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
	"insight-gateway/internal/repository"
	"insight-gateway/internal/utils"
)

// fuzzyCheckInterval is how many index keys are compared between cancellation checks
const fuzzyCheckInterval = 1024

type nameArgs struct {
	Name string `json:"name"`
}

type keyArgs struct {
	Key string `json:"key"`
}

type tokenArgs struct {
	Tokens []string `json:"tokens"`
}

// LookupCustomer finds customers by name. The exact index is consulted first;
// only when it has no entry does the bounded fuzzy fallback run.
func (s *RetrievalService) LookupCustomer(ctx context.Context, name string) (*model.LookupResult, error) {
	key := index.NormalizeKey(name)
	if key == "" {
		return nil, utils.NewInvalidQueryError("name must not be empty")
	}

	return run(ctx, s, model.OpLookupCustomer, nameArgs{Name: key}, func(ctx context.Context, snap *repository.Snapshot) (*model.LookupResult, error) {
		bm, matches, err := s.findCustomers(ctx, snap, key)
		if err != nil {
			return nil, err
		}
		ids := index.ToRowIDs(bm)
		return &model.LookupResult{
			ResultMeta: meta(model.OpLookupCustomer, snap),
			Query:      key,
			Rows:       rowsAt(snap.Table(model.TableCustomers), ids),
			RowIDs:     ids,
			Fuzzy:      len(matches) > 0,
			Matches:    matches,
		}, nil
	})
}

// findCustomers returns the rows whose name key equals key, or failing that
// the fuzzy matches. matches is empty for an exact hit.
func (s *RetrievalService) findCustomers(ctx context.Context, snap *repository.Snapshot, key string) (*roaring.Bitmap, []model.FuzzyMatch, error) {
	ix, err := requireIndex(snap, metadata.IndexCustomerByName)
	if err != nil {
		return nil, nil, err
	}
	if bm := ix.Posting(key); bm != nil && !bm.IsEmpty() {
		return bm, nil, nil
	}
	return s.fuzzyMatch(ctx, ix, key)
}

// fuzzyMatch scans the index keys for ones containing key or within the
// normalized edit distance threshold. Results are ordered by score, then key.
func (s *RetrievalService) fuzzyMatch(ctx context.Context, ix *index.Index, key string) (*roaring.Bitmap, []model.FuzzyMatch, error) {
	keys := ix.Keys()
	if len(keys) > s.opts.MaxFuzzyCandidates {
		return nil, nil, utils.NewQueryTooExpensiveError(fmt.Sprintf(
			"fuzzy lookup over %d keys exceeds the limit of %d", len(keys), s.opts.MaxFuzzyCandidates))
	}

	queryLen := utf8.RuneCountInString(key)
	threshold := s.opts.FuzzyMaxDistance
	var matches []model.FuzzyMatch

	for i, candidate := range keys {
		if i%fuzzyCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		candidateLen := utf8.RuneCountInString(candidate)
		longer := max(queryLen, candidateLen)
		substring := strings.Contains(candidate, key)

		// Distance is at least the length difference, so most keys are
		// rejected without computing it.
		lengthGap := float64(abs(queryLen-candidateLen)) / float64(longer)
		if !substring && lengthGap > threshold {
			continue
		}

		distance := levenshtein.ComputeDistance(key, candidate)
		score := float64(distance) / float64(longer)
		if !substring && score > threshold {
			continue
		}
		matches = append(matches, model.FuzzyMatch{
			Key:       candidate,
			Distance:  distance,
			Score:     score,
			Substring: substring,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score < matches[j].Score
		}
		return matches[i].Key < matches[j].Key
	})

	postings := make([]*roaring.Bitmap, len(matches))
	for i, m := range matches {
		postings[i] = ix.Posting(m.Key)
	}
	return roaring.FastOr(postings...), matches, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// OrdersForCustomer returns every order of a customer id
func (s *RetrievalService) OrdersForCustomer(ctx context.Context, customerID string) (*model.RowsResult, error) {
	key := index.IdentifierKey(customerID)
	if key == "" {
		return nil, utils.NewInvalidQueryError("customer_id must not be empty")
	}
	return s.indexLookup(ctx, model.OpOrdersForCustomer, model.TableOrders, metadata.IndexOrdersByCustomer, key)
}

// ProductsByCategory returns every product of a category
func (s *RetrievalService) ProductsByCategory(ctx context.Context, category string) (*model.RowsResult, error) {
	key := index.NormalizeKey(category)
	if key == "" {
		return nil, utils.NewInvalidQueryError("category must not be empty")
	}
	return s.indexLookup(ctx, model.OpProductsByCategory, model.TableProducts, metadata.IndexProductsByCategory, key)
}

func (s *RetrievalService) indexLookup(ctx context.Context, op string, table model.TableKind, indexName, key string) (*model.RowsResult, error) {
	return run(ctx, s, op, keyArgs{Key: key}, func(ctx context.Context, snap *repository.Snapshot) (*model.RowsResult, error) {
		ix, err := requireIndex(snap, indexName)
		if err != nil {
			return nil, err
		}
		ids := index.ToRowIDs(ix.Posting(key))
		return &model.RowsResult{
			ResultMeta: meta(op, snap),
			Table:      table,
			Index:      indexName,
			Key:        key,
			Rows:       rowsAt(snap.Table(table), ids),
			RowIDs:     ids,
		}, nil
	})
}

// SearchProducts returns products whose name contains every word of term
func (s *RetrievalService) SearchProducts(ctx context.Context, term string) (*model.RowsResult, error) {
	tokens := index.Tokens(term)
	if len(tokens) == 0 {
		return nil, utils.NewInvalidQueryError("search term has no words")
	}
	sort.Strings(tokens)

	return run(ctx, s, model.OpSearchProducts, tokenArgs{Tokens: tokens}, func(ctx context.Context, snap *repository.Snapshot) (*model.RowsResult, error) {
		ix, err := requireIndex(snap, metadata.IndexProductsByNameToken)
		if err != nil {
			return nil, err
		}

		postings := make([]*roaring.Bitmap, 0, len(tokens))
		for _, tok := range tokens {
			bm := ix.Posting(tok)
			if bm == nil {
				postings = nil
				break
			}
			postings = append(postings, bm)
		}

		var ids []int
		if len(postings) == 0 {
			ids = []int{}
		} else {
			ids = index.ToRowIDs(roaring.FastAnd(postings...))
		}
		return &model.RowsResult{
			ResultMeta: meta(model.OpSearchProducts, snap),
			Table:      model.TableProducts,
			Index:      metadata.IndexProductsByNameToken,
			Key:        strings.Join(tokens, " "),
			Rows:       rowsAt(snap.Table(model.TableProducts), ids),
			RowIDs:     ids,
		}, nil
	})
}

// CustomerOrders looks customers up by name and joins each of their orders
// with its product.
func (s *RetrievalService) CustomerOrders(ctx context.Context, name string) (*model.CustomerOrdersResult, error) {
	key := index.NormalizeKey(name)
	if key == "" {
		return nil, utils.NewInvalidQueryError("name must not be empty")
	}

	return run(ctx, s, model.OpCustomerOrders, nameArgs{Name: key}, func(ctx context.Context, snap *repository.Snapshot) (*model.CustomerOrdersResult, error) {
		bm, matches, err := s.findCustomers(ctx, snap, key)
		if err != nil {
			return nil, err
		}
		byCustomer, err := requireIndex(snap, metadata.IndexOrdersByCustomer)
		if err != nil {
			return nil, err
		}
		productByID, err := requireIndex(snap, metadata.IndexProductByID)
		if err != nil {
			return nil, err
		}

		customers := snap.Table(model.TableCustomers)
		orders := snap.Table(model.TableOrders)
		products := snap.Table(model.TableProducts)

		res := &model.CustomerOrdersResult{
			ResultMeta: meta(model.OpCustomerOrders, snap),
			Query:      key,
			Fuzzy:      len(matches) > 0,
			Customers:  []model.CustomerOrders{},
		}
		for _, customerRow := range index.ToRowIDs(bm) {
			customer := customers.Rows[customerRow]
			entry := model.CustomerOrders{
				Customer:   customer,
				CustomerID: customerRow,
				Orders:     []model.OrderDetail{},
			}
			for _, orderRow := range byCustomer.Lookup(model.FormatValue(customer["customer_id"])) {
				order := orders.Rows[orderRow]
				detail := model.OrderDetail{Order: order, OrderID: orderRow}
				if ids := productByID.Lookup(model.FormatValue(order["product_id"])); len(ids) > 0 {
					detail.Product = products.Rows[ids[0]]
				}
				entry.Orders = append(entry.Orders, detail)
			}
			res.Customers = append(res.Customers, entry)
		}
		return res, nil
	})
}
