// Read-only status endpoints for monitoring. Every handler is a pure view,
// mutations only enter through the ledger APIs.
package http

import (
	"net/http"

	"github.com/ardnnetwork/extranet-ledger/internal/bridge"
	"github.com/ardnnetwork/extranet-ledger/internal/config"
	"github.com/ardnnetwork/extranet-ledger/internal/extranet"
	"github.com/ardnnetwork/extranet-ledger/internal/farming"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type HTTPServer struct {
	engine *extranet.Engine
	farm   *farming.Farm
	bridge *bridge.Bridge
}

func NewHTTPServer(engine *extranet.Engine, farm *farming.Farm, b *bridge.Bridge) *HTTPServer {
	return &HTTPServer{engine: engine, farm: farm, bridge: b}
}

func (hs *HTTPServer) StartHTTPServer() {
	r := gin.Default()

	r.GET("/api/v1/queue", hs.handleQueueInfo)
	r.GET("/api/v1/queue/investments", hs.handleInvestmentList)
	r.GET("/api/v1/queue/withdrawals", hs.handleWithdrawalList)
	r.GET("/api/v1/supply", hs.handleSupply)
	r.GET("/api/v1/reward/:address", hs.handleReward)
	r.GET("/api/v1/bridge", hs.handleBridge)

	addr := ":" + config.AppConfig.HTTPPort
	log.Infof("HTTP server is running on port %s", config.AppConfig.HTTPPort)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}
}

func (hs *HTTPServer) handleQueueInfo(c *gin.Context) {
	info := hs.engine.QueueInfo()
	c.JSON(http.StatusOK, gin.H{
		"investment_address_list_length": info.InvestmentAddressListLength,
		"withdrawal_address_list_length": info.WithdrawalAddressListLength,
		"investment_total_amount":        info.InvestmentTotalAmount.Dec(),
		"withdrawal_total_amount":        info.WithdrawalTotalAmount.Dec(),
	})
}

func (hs *HTTPServer) handleInvestmentList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addresses": hs.engine.PendingInvestmentAddressList()})
}

func (hs *HTTPServer) handleWithdrawalList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"addresses": hs.engine.PendingWithdrawalAddressList()})
}

func (hs *HTTPServer) handleSupply(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbol":       hs.engine.Token().Symbol(),
		"total_supply": hs.engine.Token().TotalSupply().Dec(),
	})
}

func (hs *HTTPServer) handleReward(c *gin.Context) {
	raw := c.Param("address")
	if !common.IsHexAddress(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	account := common.HexToAddress(raw)
	c.JSON(http.StatusOK, gin.H{
		"account":       account.Hex(),
		"shares":        hs.farm.SharesOf(account).Dec(),
		"reward_amount": hs.farm.RewardAmount(account).Dec(),
	})
}

func (hs *HTTPServer) handleBridge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"network_id":    hs.bridge.NetworkId(),
		"locked_amount": hs.bridge.LockedAmount().Dec(),
		"paused":        hs.bridge.Paused(),
	})
}
