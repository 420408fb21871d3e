package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"insight-gateway/internal/model"
)

// customersAt returns a customer table whose size identifies the generation
// it is published as: generation g has 3 + g customers.
func customersAt(generation uint64) [][]string {
	records := customerRecords()
	for i := uint64(2); i <= generation; i++ {
		records = append(records, []string{fmt.Sprintf("C%d", 3+i), fmt.Sprintf("Extra Customer %d", i), "", "Reno", "NV", ""})
	}
	return records
}

func TestQueriesDuringRefreshSeeOneGeneration(t *testing.T) {
	svc := loadedService(t)
	ctx := context.Background()
	const lastGeneration = 25

	var published atomic.Uint64
	published.Store(1)
	done := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				floor := published.Load()

				page, err := svc.ListCustomers(gctx, 1, 1000)
				if err != nil {
					return err
				}
				if want := int(3 + page.Generation); page.TotalCount != want || len(page.Rows) != want {
					return fmt.Errorf("generation %d listed %d of %d customers, want %d",
						page.Generation, len(page.Rows), page.TotalCount, want)
				}
				if page.Generation < floor {
					return fmt.Errorf("query started after generation %d was published saw %d", floor, page.Generation)
				}

				count, err := svc.Aggregate(gctx, model.AggregateSpec{Op: model.AggregateCount, Table: model.TableCustomers})
				if err != nil {
					return err
				}
				if count.Value != int64(3+count.Generation) {
					return fmt.Errorf("generation %d counted %v customers", count.Generation, count.Value)
				}

				orders, err := svc.CustomerOrders(gctx, "melissa wang")
				if err != nil {
					return err
				}
				if len(orders.Customers) != 2 {
					return fmt.Errorf("generation %d found %d customers named melissa wang", orders.Generation, len(orders.Customers))
				}
			}
		})
	}

	g.Go(func() error {
		defer close(done)
		for gen := uint64(2); gen <= lastGeneration; gen++ {
			result, err := svc.Refresh(gctx, rawTables(customersAt(gen), nil, nil))
			if err != nil {
				return err
			}
			if result.Generation != gen {
				return fmt.Errorf("refresh published %d, want %d", result.Generation, gen)
			}
			published.Store(gen)
		}
		return nil
	})

	require.NoError(t, g.Wait())

	final, err := svc.ListCustomers(ctx, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(lastGeneration), final.Generation)
	assert.Equal(t, 3+lastGeneration, final.TotalCount)
}
