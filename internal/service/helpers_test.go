package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/oracle"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	testAuthority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	testOwner     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	testStranger  = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

// stubResolver serves fixed prices per feed and records the max age of every call.
type stubResolver struct {
	mu      sync.Mutex
	prices  map[string]uint64
	errs    map[string]error
	maxAges []time.Duration
}

func newStubResolver() *stubResolver {
	return &stubResolver{prices: map[string]uint64{}, errs: map[string]error{}}
}

func (s *stubResolver) GetPrice(_ context.Context, feedID string, maxAge time.Duration) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAges = append(s.maxAges, maxAge)
	if err, ok := s.errs[feedID]; ok {
		return 0, err
	}
	if p, ok := s.prices[feedID]; ok {
		return p, nil
	}
	return 0, oracle.ErrFeedNotFound
}

func (s *stubResolver) lastMaxAge() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.maxAges) == 0 {
		return 0
	}
	return s.maxAges[len(s.maxAges)-1]
}

type testEnv struct {
	store      *repository.MemoryStore
	resolver   *stubResolver
	registry   *RegistryService
	obligation *ObligationService
	audit      *AuditService
}

// newTestEnv wires the services over memory storage with the two-asset registry used
// throughout: asset 1 at price 100, asset 2 at price 50, pair (1,2) at risk level 20.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	env := &testEnv{
		store:    repository.NewMemoryStore(),
		resolver: newStubResolver(),
	}
	env.registry = NewRegistryService(env.store, env.resolver, 300*time.Second, time.Second)
	audit, err := NewAuditService("", 100, nil)
	require.NoError(t, err)
	t.Cleanup(audit.Close)
	env.audit = audit
	engine := NewRiskEngine(env.resolver, 60*time.Second, time.Second)
	env.obligation = NewObligationService(env.store, env.registry, engine, audit)

	_, err = env.registry.Initialize(ctx, testAuthority, common.Address{})
	require.NoError(t, err)
	_, err = env.registry.AddAsset(ctx, testAuthority, model.AssetInfo{ID: 1, Price: 100})
	require.NoError(t, err)
	_, err = env.registry.AddAsset(ctx, testAuthority, model.AssetInfo{ID: 2, Price: 50})
	require.NoError(t, err)
	_, err = env.registry.AddRiskParam(ctx, testAuthority, 1, 2, 20)
	require.NoError(t, err)
	return env
}
