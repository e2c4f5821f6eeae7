package gate

import (
	"context"
	"fmt"
	"sync"

	gateapi "github.com/gateio/gateapi-go/v7"
	"golang.org/x/sync/singleflight"
)

// QuantoSource resolves the quanto multiplier of a futures contract.
type QuantoSource interface {
	Multiplier(ctx context.Context, contract string) (float64, error)
}

// ContractCache fetches contract metadata once per contract. Failed lookups
// are not cached.
type ContractCache struct {
	rest *gateapi.APIClient

	mu     sync.RWMutex
	values map[string]float64
	group  singleflight.Group
}

func NewContractCache(rest *gateapi.APIClient) *ContractCache {
	return &ContractCache{rest: rest, values: make(map[string]float64)}
}

func (c *ContractCache) Multiplier(ctx context.Context, contract string) (float64, error) {
	c.mu.RLock()
	v, ok := c.values[contract]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}
	res, err, _ := c.group.Do(contract, func() (any, error) {
		info, _, err := c.rest.FuturesApi.GetFuturesContract(ctx, gateSettle, contract)
		if err != nil {
			return 0.0, err
		}
		mult := parseFloat(info.QuantoMultiplier)
		if mult <= 0 {
			return 0.0, fmt.Errorf("contract %s has no quanto multiplier", contract)
		}
		c.mu.Lock()
		c.values[contract] = mult
		c.mu.Unlock()
		return mult, nil
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}
