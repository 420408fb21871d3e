package service

import (
	"context"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"insight-gateway/internal/database/index"
	"insight-gateway/internal/database/metadata"
	"insight-gateway/internal/model"
	"insight-gateway/internal/repository"
	"insight-gateway/internal/utils"
)

type pageArgs struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type orderListArgs struct {
	Status     string `json:"status,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	pageArgs
}

type productListArgs struct {
	Category string   `json:"category,omitempty"`
	Tokens   []string `json:"tokens,omitempty"`
	pageArgs
}

// OrderFilter narrows ListOrders. Empty fields do not filter.
type OrderFilter struct {
	Status     string
	CustomerID string
}

// ProductFilter narrows ListProducts. Name matches products whose name
// contains every word of it.
type ProductFilter struct {
	Category string
	Name     string
}

// pageWindow returns the half-open range of positions [start, end) that
// page covers among total items, and the page count. Pages past the end
// yield an empty range at total.
func pageWindow(total, page, pageSize int) (start, end, pages int) {
	pages = total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	if page-1 >= pages {
		return total, total, pages
	}
	start = (page - 1) * pageSize
	end = start + min(pageSize, total-start)
	return start, end, pages
}

func validatePage(page, pageSize int) error {
	if page < 1 || pageSize < 1 {
		return utils.NewInvalidPageError(page, pageSize)
	}
	return nil
}

// ListCustomers returns one 1-based page of customers in row order
func (s *RetrievalService) ListCustomers(ctx context.Context, page, pageSize int) (*model.PageResult, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}

	return run(ctx, s, model.OpListCustomers, pageArgs{Page: page, PageSize: pageSize}, func(ctx context.Context, snap *repository.Snapshot) (*model.PageResult, error) {
		res := newPage(model.OpListCustomers, snap, model.TableCustomers, page, pageSize)
		fillPage(res, snap.Table(model.TableCustomers), nil)
		return res, nil
	})
}

// ListOrders returns one page of orders, optionally restricted to a status
// and a customer id. Filters are answered from the exact indexes.
func (s *RetrievalService) ListOrders(ctx context.Context, filter OrderFilter, page, pageSize int) (*model.PageResult, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}
	args := orderListArgs{pageArgs: pageArgs{Page: page, PageSize: pageSize}}
	if filter.Status != "" {
		status, err := metadata.ParseEnum(filter.Status, metadata.OrderStatuses)
		if err != nil {
			return nil, utils.NewInvalidQueryError(err.Error())
		}
		args.Status = status
	}
	args.CustomerID = index.IdentifierKey(filter.CustomerID)

	return run(ctx, s, model.OpListOrders, args, func(ctx context.Context, snap *repository.Snapshot) (*model.PageResult, error) {
		res := newPage(model.OpListOrders, snap, model.TableOrders, page, pageSize)
		var postings []*roaring.Bitmap
		if args.Status != "" {
			bm, err := postingFor(snap, metadata.IndexOrdersByStatus, args.Status)
			if err != nil {
				return nil, err
			}
			postings = append(postings, bm)
			res.Indexes = append(res.Indexes, metadata.IndexOrdersByStatus)
			res.Filter["status"] = args.Status
		}
		if args.CustomerID != "" {
			bm, err := postingFor(snap, metadata.IndexOrdersByCustomer, args.CustomerID)
			if err != nil {
				return nil, err
			}
			postings = append(postings, bm)
			res.Indexes = append(res.Indexes, metadata.IndexOrdersByCustomer)
			res.Filter["customer_id"] = args.CustomerID
		}
		fillPage(res, snap.Table(model.TableOrders), postings)
		return res, nil
	})
}

// ListProducts returns one page of products, optionally restricted to a
// category and to names containing every word of filter.Name.
func (s *RetrievalService) ListProducts(ctx context.Context, filter ProductFilter, page, pageSize int) (*model.PageResult, error) {
	if err := validatePage(page, pageSize); err != nil {
		return nil, err
	}
	args := productListArgs{
		Category: index.NormalizeKey(filter.Category),
		pageArgs: pageArgs{Page: page, PageSize: pageSize},
	}
	if filter.Name != "" {
		args.Tokens = index.Tokens(filter.Name)
		sort.Strings(args.Tokens)
		if len(args.Tokens) == 0 {
			return nil, utils.NewInvalidQueryError("name filter has no words")
		}
	}

	return run(ctx, s, model.OpListProducts, args, func(ctx context.Context, snap *repository.Snapshot) (*model.PageResult, error) {
		res := newPage(model.OpListProducts, snap, model.TableProducts, page, pageSize)
		var postings []*roaring.Bitmap
		if args.Category != "" {
			bm, err := postingFor(snap, metadata.IndexProductsByCategory, args.Category)
			if err != nil {
				return nil, err
			}
			postings = append(postings, bm)
			res.Indexes = append(res.Indexes, metadata.IndexProductsByCategory)
			res.Filter["category"] = args.Category
		}
		if len(args.Tokens) > 0 {
			for _, tok := range args.Tokens {
				bm, err := postingFor(snap, metadata.IndexProductsByNameToken, tok)
				if err != nil {
					return nil, err
				}
				postings = append(postings, bm)
			}
			res.Indexes = append(res.Indexes, metadata.IndexProductsByNameToken)
			res.Filter["name"] = strings.Join(args.Tokens, " ")
		}
		fillPage(res, snap.Table(model.TableProducts), postings)
		return res, nil
	})
}

func newPage(op string, snap *repository.Snapshot, table model.TableKind, page, pageSize int) *model.PageResult {
	return &model.PageResult{
		ResultMeta: meta(op, snap),
		Table:      table,
		Rows:       []model.Row{},
		RowIDs:     []int{},
		Page:       page,
		PageSize:   pageSize,
		Filter:     map[string]string{},
	}
}

// postingFor returns the rows of an exact index key, empty when absent
func postingFor(snap *repository.Snapshot, indexName, key string) (*roaring.Bitmap, error) {
	ix, err := requireIndex(snap, indexName)
	if err != nil {
		return nil, err
	}
	if bm := ix.Posting(key); bm != nil {
		return bm, nil
	}
	return roaring.New(), nil
}

// fillPage pages through the intersection of postings, or the whole table
// when there are none.
func fillPage(res *model.PageResult, table *model.Table, postings []*roaring.Bitmap) {
	if len(postings) == 0 {
		start, end, pages := pageWindow(table.Len(), res.Page, res.PageSize)
		res.TotalCount, res.TotalPages = table.Len(), pages
		for id := start; id < end; id++ {
			res.RowIDs = append(res.RowIDs, id)
		}
		if start < end {
			res.Rows = table.Rows[start:end]
		}
		res.HasMore = end < table.Len()
		return
	}

	matched := roaring.FastAnd(postings...)
	total := int(matched.GetCardinality())
	start, end, pages := pageWindow(total, res.Page, res.PageSize)
	res.TotalCount, res.TotalPages = total, pages
	if start < end {
		first, err := matched.Select(uint32(start))
		if err == nil {
			it := matched.Iterator()
			it.AdvanceIfNeeded(first)
			for len(res.RowIDs) < end-start && it.HasNext() {
				res.RowIDs = append(res.RowIDs, int(it.Next()))
			}
		}
	}
	res.Rows = rowsAt(table, res.RowIDs)
	res.HasMore = end < total
}
