package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"insight-gateway/internal/model"
	"insight-gateway/internal/utils"
)

// Execute dispatches a structured query to its operation. Omitted arguments
// take the same defaults as explicit ones, so both share a cache entry.
func (s *RetrievalService) Execute(ctx context.Context, q model.Query) (model.Result, error) {
	args := q.Args
	if args == nil {
		args = map[string]any{}
	}

	switch strings.ToLower(strings.TrimSpace(q.Operation)) {
	case model.OpLookupCustomer:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		return s.LookupCustomer(ctx, name)

	case model.OpListCustomers:
		page, pageSize, err := s.pagingArgs(args)
		if err != nil {
			return nil, err
		}
		return s.ListCustomers(ctx, page, pageSize)

	case model.OpOrdersForCustomer:
		id, err := stringArg(args, "customer_id")
		if err != nil {
			return nil, err
		}
		return s.OrdersForCustomer(ctx, id)

	case model.OpProductsByCategory:
		category, err := stringArg(args, "category")
		if err != nil {
			return nil, err
		}
		return s.ProductsByCategory(ctx, category)

	case model.OpSearchProducts:
		term, err := stringArg(args, "term", "q")
		if err != nil {
			return nil, err
		}
		return s.SearchProducts(ctx, term)

	case model.OpCustomerOrders:
		name, err := stringArg(args, "name")
		if err != nil {
			return nil, err
		}
		return s.CustomerOrders(ctx, name)

	case model.OpListOrders:
		page, pageSize, err := s.pagingArgs(args)
		if err != nil {
			return nil, err
		}
		status, err := optionalStringArg(args, "status")
		if err != nil {
			return nil, err
		}
		customerID, err := optionalStringArg(args, "customer_id")
		if err != nil {
			return nil, err
		}
		return s.ListOrders(ctx, OrderFilter{Status: status, CustomerID: customerID}, page, pageSize)

	case model.OpListProducts:
		page, pageSize, err := s.pagingArgs(args)
		if err != nil {
			return nil, err
		}
		category, err := optionalStringArg(args, "category")
		if err != nil {
			return nil, err
		}
		name, err := optionalStringArg(args, "name")
		if err != nil {
			return nil, err
		}
		return s.ListProducts(ctx, ProductFilter{Category: category, Name: name}, page, pageSize)

	case model.OpAggregate:
		spec, err := DecodeAggregateSpec(args)
		if err != nil {
			return nil, err
		}
		return s.Aggregate(ctx, spec)

	case "":
		return nil, utils.NewInvalidQueryError("operation is required")
	}

	return nil, utils.NewInvalidQueryError(fmt.Sprintf("unknown operation %q, expected one of %s",
		q.Operation, strings.Join(model.Operations, ", ")))
}

// DecodeAggregateSpec reads aggregate arguments in their JSON form
func DecodeAggregateSpec(args map[string]any) (model.AggregateSpec, error) {
	var spec model.AggregateSpec
	data, err := json.Marshal(args)
	if err != nil {
		return spec, utils.NewInvalidQueryError(err.Error())
	}
	if err := json.Unmarshal(data, &spec); err != nil {
		return spec, utils.NewInvalidQueryError(fmt.Sprintf("invalid aggregate arguments: %v", err))
	}
	return spec, nil
}

// AggregateArgs renders a spec as query arguments
func AggregateArgs(spec model.AggregateSpec) map[string]any {
	args := map[string]any{"op": string(spec.Op), "table": string(spec.Table)}
	if spec.Column != "" {
		args["column"] = spec.Column
	}
	if spec.Weight != "" {
		args["weight"] = spec.Weight
	}
	if spec.GroupBy != "" {
		args["group_by"] = spec.GroupBy
	}
	if len(spec.Filter) > 0 {
		args["filter"] = spec.Filter
	}
	if spec.MaxCost > 0 {
		args["max_cost"] = spec.MaxCost
	}
	if spec.RequireIndex {
		args["require_index"] = true
	}
	return args
}

// stringArg returns the first present name as a string
func stringArg(args map[string]any, names ...string) (string, error) {
	for _, name := range names {
		raw, ok := args[name]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64, int, int64, json.Number:
			return fmt.Sprint(v), nil
		default:
			return "", utils.NewInvalidQueryError(fmt.Sprintf("argument %s must be a string", name))
		}
	}
	return "", utils.NewInvalidQueryError(fmt.Sprintf("argument %s is required", names[0]))
}

// optionalStringArg is stringArg returning "" when name is absent
func optionalStringArg(args map[string]any, name string) (string, error) {
	if raw, ok := args[name]; !ok || raw == nil {
		return "", nil
	}
	return stringArg(args, name)
}

// pagingArgs reads page and page_size with their defaults
func (s *RetrievalService) pagingArgs(args map[string]any) (int, int, error) {
	page, err := intArg(args, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := intArg(args, "page_size", s.opts.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// intArg reads an integer argument, returning def when it is absent
func intArg(args map[string]any, name string, def int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}
	invalid := utils.NewInvalidQueryError(fmt.Sprintf("argument %s must be an integer", name))
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v >= math.MaxInt || v < math.MinInt || v != math.Trunc(v) {
			return 0, invalid
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, invalid
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, invalid
		}
		return n, nil
	}
	return 0, invalid
}
