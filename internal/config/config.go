package config

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

type Config struct {
	HTTPPort   string
	EnableHTTP bool

	EnableRelay bool

	DbDir string

	// network ids of the home net and the extranet, carried on bridge events
	NetworkId         uint64
	ExtranetNetworkId uint64

	QuoteTokenName      string
	QuoteTokenSymbol    string
	QuoteTokenDecimals  uint8
	VaultTokenName      string
	VaultTokenSymbol    string
	VaultTokenDecimals  uint8
	RewardTokenName     string
	RewardTokenSymbol   string
	RewardTokenDecimals uint8
	ExtranetTokenName   string
	ExtranetTokenSymbol string
	ExtranetDecimals    uint8

	MinInvestment        *uint256.Int
	MinWithdrawal        *uint256.Int
	WithdrawalFeePercent *uint256.Int
	FeeRecipient         common.Address

	AdminAddress   common.Address
	ManagerAddress common.Address
	TraderAddress  common.Address

	LogLevel logrus.Level
}

func InitConfig() {
	// .env is optional, env vars win either way
	_ = godotenv.Load()

	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("ENABLE_HTTP", true)
	viper.SetDefault("ENABLE_RELAY", true)
	viper.SetDefault("DB_DIR", "/app/db")
	viper.SetDefault("NETWORK_ID", 1)
	viper.SetDefault("EXTRANET_NETWORK_ID", 1313161554)
	viper.SetDefault("QUOTE_TOKEN_NAME", "USD Quote")
	viper.SetDefault("QUOTE_TOKEN_SYMBOL", "USDQ")
	viper.SetDefault("QUOTE_TOKEN_DECIMALS", 6)
	viper.SetDefault("VAULT_TOKEN_NAME", "Vault LP")
	viper.SetDefault("VAULT_TOKEN_SYMBOL", "BFRM")
	viper.SetDefault("VAULT_TOKEN_DECIMALS", 18)
	viper.SetDefault("REWARD_TOKEN_NAME", "Ardena")
	viper.SetDefault("REWARD_TOKEN_SYMBOL", "ARDN")
	viper.SetDefault("REWARD_TOKEN_DECIMALS", 18)
	viper.SetDefault("EXTRANET_TOKEN_NAME", "Extranet Vault")
	viper.SetDefault("EXTRANET_TOKEN_SYMBOL", "arBFRM")
	viper.SetDefault("EXTRANET_TOKEN_DECIMALS", 18)
	viper.SetDefault("MIN_INVESTMENT", "0")
	viper.SetDefault("MIN_WITHDRAWAL", "0")
	viper.SetDefault("WITHDRAWAL_FEE_PERCENT", "0")
	viper.SetDefault("FEE_RECIPIENT", "0x0000000000000000000000000000000000000000")
	viper.SetDefault("ADMIN_ADDRESS", "0x0000000000000000000000000000000000000001")
	viper.SetDefault("MANAGER_ADDRESS", "0x0000000000000000000000000000000000000002")
	viper.SetDefault("TRADER_ADDRESS", "0x0000000000000000000000000000000000000003")
	viper.SetDefault("LOG_LEVEL", "info")

	logLevel, err := logrus.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}

	AppConfig = Config{
		HTTPPort:             viper.GetString("HTTP_PORT"),
		EnableHTTP:           viper.GetBool("ENABLE_HTTP"),
		EnableRelay:          viper.GetBool("ENABLE_RELAY"),
		DbDir:                viper.GetString("DB_DIR"),
		NetworkId:            viper.GetUint64("NETWORK_ID"),
		ExtranetNetworkId:    viper.GetUint64("EXTRANET_NETWORK_ID"),
		QuoteTokenName:       viper.GetString("QUOTE_TOKEN_NAME"),
		QuoteTokenSymbol:     viper.GetString("QUOTE_TOKEN_SYMBOL"),
		QuoteTokenDecimals:   uint8(viper.GetUint("QUOTE_TOKEN_DECIMALS")),
		VaultTokenName:       viper.GetString("VAULT_TOKEN_NAME"),
		VaultTokenSymbol:     viper.GetString("VAULT_TOKEN_SYMBOL"),
		VaultTokenDecimals:   uint8(viper.GetUint("VAULT_TOKEN_DECIMALS")),
		RewardTokenName:      viper.GetString("REWARD_TOKEN_NAME"),
		RewardTokenSymbol:    viper.GetString("REWARD_TOKEN_SYMBOL"),
		RewardTokenDecimals:  uint8(viper.GetUint("REWARD_TOKEN_DECIMALS")),
		ExtranetTokenName:    viper.GetString("EXTRANET_TOKEN_NAME"),
		ExtranetTokenSymbol:  viper.GetString("EXTRANET_TOKEN_SYMBOL"),
		ExtranetDecimals:     uint8(viper.GetUint("EXTRANET_TOKEN_DECIMALS")),
		MinInvestment:        mustAmount("MIN_INVESTMENT"),
		MinWithdrawal:        mustAmount("MIN_WITHDRAWAL"),
		WithdrawalFeePercent: mustAmount("WITHDRAWAL_FEE_PERCENT"),
		FeeRecipient:         mustAddress("FEE_RECIPIENT"),
		AdminAddress:         mustAddress("ADMIN_ADDRESS"),
		ManagerAddress:       mustAddress("MANAGER_ADDRESS"),
		TraderAddress:        mustAddress("TRADER_ADDRESS"),
		LogLevel:             logLevel,
	}

	logrus.SetLevel(logLevel)
}

func mustAmount(key string) *uint256.Int {
	value, err := uint256.FromDecimal(viper.GetString(key))
	if err != nil {
		logrus.Fatalf("Failed to parse %s: %v", key, err)
	}
	return value
}

func mustAddress(key string) common.Address {
	raw := viper.GetString(key)
	if !common.IsHexAddress(raw) {
		logrus.Fatalf("Invalid address for %s: %q", key, raw)
	}
	return common.HexToAddress(raw)
}
