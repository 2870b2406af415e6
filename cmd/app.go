package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ardnnetwork/extranet-ledger/internal/bridge"
	"github.com/ardnnetwork/extranet-ledger/internal/config"
	"github.com/ardnnetwork/extranet-ledger/internal/db"
	"github.com/ardnnetwork/extranet-ledger/internal/extranet"
	"github.com/ardnnetwork/extranet-ledger/internal/farming"
	"github.com/ardnnetwork/extranet-ledger/internal/http"
	"github.com/ardnnetwork/extranet-ledger/internal/rbac"
	"github.com/ardnnetwork/extranet-ledger/internal/relay"
	"github.com/ardnnetwork/extranet-ledger/internal/state"
	"github.com/ardnnetwork/extranet-ledger/internal/token"
	"github.com/ardnnetwork/extranet-ledger/internal/types"
	log "github.com/sirupsen/logrus"
)

type Application struct {
	DatabaseManager *db.DatabaseManager
	EventBus        *state.EventBus
	Roles           *rbac.Registry
	QuoteToken      *token.Ledger
	VaultToken      *token.Ledger
	RewardToken     *token.Ledger
	Engine          *extranet.Engine
	Farm            *farming.Farm
	Bridge          *bridge.Bridge
	Relay           *relay.Relay
	HTTPServer      *http.HTTPServer
}

func NewApplication() *Application {
	config.InitConfig()
	cfg := config.AppConfig

	dbm := db.NewDatabaseManager()
	bus := state.NewEventBus()

	roles, err := rbac.NewRegistry(dbm.GetAuthDB(), cfg.AdminAddress)
	if err != nil {
		log.Fatalf("Failed to initialize role registry: %v", err)
	}
	if err := roles.Grant(cfg.AdminAddress, rbac.RoleManager, cfg.ManagerAddress); err != nil {
		log.Fatalf("Failed to grant manager role: %v", err)
	}
	if err := roles.Grant(cfg.AdminAddress, rbac.RoleTrader, cfg.TraderAddress); err != nil {
		log.Fatalf("Failed to grant trader role: %v", err)
	}

	quoteToken, err := token.NewLedger(dbm.GetTokenDB(), cfg.QuoteTokenName, cfg.QuoteTokenSymbol, cfg.QuoteTokenDecimals)
	if err != nil {
		log.Fatalf("Failed to open quote token ledger: %v", err)
	}
	vaultToken, err := token.NewLedger(dbm.GetTokenDB(), cfg.VaultTokenName, cfg.VaultTokenSymbol, cfg.VaultTokenDecimals)
	if err != nil {
		log.Fatalf("Failed to open vault token ledger: %v", err)
	}
	rewardToken, err := token.NewLedger(dbm.GetTokenDB(), cfg.RewardTokenName, cfg.RewardTokenSymbol, cfg.RewardTokenDecimals)
	if err != nil {
		log.Fatalf("Failed to open reward token ledger: %v", err)
	}
	extranetToken, err := token.NewLedger(dbm.GetTokenDB(), cfg.ExtranetTokenName, cfg.ExtranetTokenSymbol, cfg.ExtranetDecimals)
	if err != nil {
		log.Fatalf("Failed to open extranet token ledger: %v", err)
	}

	engine, err := extranet.NewEngine(
		dbm.GetExtranetDB(),
		types.ModuleAddress("extranet"),
		extranetToken,
		quoteToken,
		roles,
		bus,
		extranet.Params{
			MinInvestment:        cfg.MinInvestment,
			MinWithdrawal:        cfg.MinWithdrawal,
			WithdrawalFeePercent: cfg.WithdrawalFeePercent,
			FeeRecipient:         cfg.FeeRecipient,
		},
	)
	if err != nil {
		log.Fatalf("Failed to initialize settlement engine: %v", err)
	}

	farm, err := farming.NewFarm(dbm.GetFarmDB(), types.ModuleAddress("farming"), extranetToken, rewardToken)
	if err != nil {
		log.Fatalf("Failed to initialize farm: %v", err)
	}

	bridgeLedger, err := bridge.NewBridge(dbm.GetBridgeDB(), types.ModuleAddress("bridge"), cfg.NetworkId, vaultToken, roles, bus)
	if err != nil {
		log.Fatalf("Failed to initialize bridge: %v", err)
	}

	return &Application{
		DatabaseManager: dbm,
		EventBus:        bus,
		Roles:           roles,
		QuoteToken:      quoteToken,
		VaultToken:      vaultToken,
		RewardToken:     rewardToken,
		Engine:          engine,
		Farm:            farm,
		Bridge:          bridgeLedger,
		Relay:           relay.NewRelay(bus, engine, cfg.TraderAddress),
		HTTPServer:      http.NewHTTPServer(engine, farm, bridgeLedger),
	}
}

func (app *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	if config.AppConfig.EnableRelay {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.Relay.Start(ctx)
		}()
	}

	if config.AppConfig.EnableHTTP {
		go app.HTTPServer.StartHTTPServer()
	}

	<-stop
	log.Info("Receiving exit signal...")

	cancel()

	wg.Wait()
	log.Info("Server stopped")
}

func main() {
	app := NewApplication()
	app.Run()
}
