package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/GoPolymarket/polylend/internal/config"
	"github.com/GoPolymarket/polylend/internal/model"
	"github.com/GoPolymarket/polylend/internal/repository"
	"github.com/GoPolymarket/polylend/internal/service"
	"github.com/ethereum/go-ethereum/common"
)

// inspector 打印某个 owner 的账本快照，并用 registry 价格重新计算健康分
func main() {
	ownerFlag := flag.String("owner", "", "obligation owner address (optional)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("load config: %v", err)
	}
	if cfg.Database.Driver == "" || cfg.Database.Driver == "memory" {
		fail("inspector needs a persistent database.driver (sqlite or postgres)")
	}

	db, err := repository.NewDB(cfg.Database)
	if err != nil {
		fail("%v", err)
	}
	store, err := repository.NewGormStore(db)
	if err != nil {
		fail("migrate: %v", err)
	}

	ctx := context.Background()
	registry := service.NewRegistryService(store, nil, 0, 0)
	if err := registry.Load(ctx); err != nil {
		fail("%v", err)
	}
	ledger := service.NewObligationService(store, registry, service.NewRiskEngine(nil, 0, 0), nil)

	var owner common.Address
	if *ownerFlag != "" {
		if !common.IsHexAddress(*ownerFlag) {
			fail("invalid owner address %q", *ownerFlag)
		}
		owner = common.HexToAddress(*ownerFlag)
	}

	snap, err := ledger.ReadAll(ctx, owner)
	if err != nil {
		fail("%v", err)
	}
	out := struct {
		*model.Snapshot
		Recomputed *service.HealthReport `json:"recomputed,omitempty"`
	}{Snapshot: snap}
	if snap.Obligation != nil && snap.Registry != nil {
		if report, err := ledger.Evaluate(ctx, owner); err == nil {
			out.Recomputed = report
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "inspector: "+format+"\n", args...)
	os.Exit(1)
}
