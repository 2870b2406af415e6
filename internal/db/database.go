package db

import (
	"os"
	"path/filepath"

	"github.com/ardnnetwork/extranet-ledger/internal/config"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type DatabaseManager struct {
	tokenDb    *gorm.DB
	farmDb     *gorm.DB
	extranetDb *gorm.DB
	bridgeDb   *gorm.DB
	authDb     *gorm.DB
}

func NewDatabaseManager() *DatabaseManager {
	dm := &DatabaseManager{}
	dm.initDB()
	return dm
}

// NewDatabaseManagerAt opens the databases under an explicit directory,
// test fixtures use it with a temp dir
func NewDatabaseManagerAt(dbDir string) *DatabaseManager {
	dm := &DatabaseManager{}
	dm.initDBAt(dbDir)
	return dm
}

func (dm *DatabaseManager) initDB() {
	dm.initDBAt(config.AppConfig.DbDir)
}

func (dm *DatabaseManager) initDBAt(dbDir string) {
	if err := os.MkdirAll(dbDir, os.ModePerm); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	dm.tokenDb = openDB(filepath.Join(dbDir, "token.db"))
	dm.farmDb = openDB(filepath.Join(dbDir, "farm.db"))
	dm.extranetDb = openDB(filepath.Join(dbDir, "extranet.db"))
	dm.bridgeDb = openDB(filepath.Join(dbDir, "bridge.db"))
	dm.authDb = openDB(filepath.Join(dbDir, "auth.db"))

	dm.autoMigrate()
	log.Debugf("Database migration completed successfully, dir: %s", dbDir)
}

func openDB(path string) *gorm.DB {
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database %s: %v", path, err)
	}
	log.Debugf("Database connected successfully, path: %s", path)
	return gdb
}

func (dm *DatabaseManager) autoMigrate() {
	if err := dm.tokenDb.AutoMigrate(&TokenMeta{}, &TokenBalance{}, &TokenAllowance{}); err != nil {
		log.Fatalf("Failed to migrate token db: %v", err)
	}
	if err := dm.farmDb.AutoMigrate(&FarmMeta{}, &FarmPosition{}); err != nil {
		log.Fatalf("Failed to migrate farm db: %v", err)
	}
	if err := dm.extranetDb.AutoMigrate(&ExtranetMeta{}, &QueueEntry{}, &SettlementRun{}, &ProcessedTx{}); err != nil {
		log.Fatalf("Failed to migrate extranet db: %v", err)
	}
	if err := dm.bridgeDb.AutoMigrate(&BridgeMeta{}, &ProcessedTx{}); err != nil {
		log.Fatalf("Failed to migrate bridge db: %v", err)
	}
	if err := dm.authDb.AutoMigrate(&RoleGrant{}); err != nil {
		log.Fatalf("Failed to migrate auth db: %v", err)
	}
}

func (dm *DatabaseManager) GetTokenDB() *gorm.DB {
	return dm.tokenDb
}

func (dm *DatabaseManager) GetFarmDB() *gorm.DB {
	return dm.farmDb
}

func (dm *DatabaseManager) GetExtranetDB() *gorm.DB {
	return dm.extranetDb
}

func (dm *DatabaseManager) GetBridgeDB() *gorm.DB {
	return dm.bridgeDb
}

func (dm *DatabaseManager) GetAuthDB() *gorm.DB {
	return dm.authDb
}
