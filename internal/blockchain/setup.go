// server/internal/blockchain/setup.go
package blockchain

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	fabconfig "github.com/hyperledger/fabric-sdk-go/pkg/core/config"
	"github.com/hyperledger/fabric-sdk-go/pkg/fabsdk"
	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"

	"upcycle-api-server/config"
	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/wallet"
)

// FabricSetup holds the single gateway connection the transfer recorder
// submits through.
type FabricSetup struct {
	gw       *gateway.Gateway
	sdk      *fabsdk.FabricSDK
	contract *gateway.Contract
	channel  string
	cc       string
}

// recorderIdentity resolves the MSP of the recorder user, defaulting to the
// "<org>MSP" naming of the test network.
func recorderIdentity(cfg config.FabricConfig) (mspID, user string) {
	mspID = cfg.MSPID
	if mspID == "" {
		mspID = cfg.OrgName + "MSP"
	}
	return mspID, cfg.UserName
}

func checkFabricConfig(cfg config.FabricConfig) error {
	var errs []error
	for name, v := range map[string]string{
		"fabric.connectionProfile": cfg.ConnectionProfile,
		"fabric.channelName":       cfg.ChannelName,
		"fabric.chaincodeName":     cfg.ChaincodeName,
		"fabric.userName":          cfg.UserName,
		"fabric.userCertPath":      cfg.UserCertPath,
		"fabric.userKeyDir":        cfg.UserKeyDir,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if cfg.MSPID == "" && cfg.OrgName == "" {
		errs = append(errs, errors.New("fabric.mspID or fabric.orgName is required"))
	}
	return errors.Join(errs...)
}

// Initialize checks the recorder settings, makes sure the recorder identity
// is in the wallet and opens the transfer contract.
func Initialize(cfg config.FabricConfig) (*FabricSetup, error) {
	if err := checkFabricConfig(cfg); err != nil {
		return nil, err
	}
	os.Setenv("DISCOVERY_AS_LOCALHOST", "true")

	fsWallet, err := gateway.NewFileSystemWallet(cfg.WalletPath)
	if err != nil {
		return nil, fmt.Errorf("open wallet %s: %w", cfg.WalletPath, err)
	}
	mspID, user := recorderIdentity(cfg)
	if err := wallet.PopulateWallet(fsWallet, mspID, user, cfg.UserCertPath, cfg.UserKeyDir); err != nil {
		return nil, fmt.Errorf("load identity %s (%s): %w", user, mspID, err)
	}

	sdk, err := fabsdk.New(fabconfig.FromFile(filepath.Clean(cfg.ConnectionProfile)))
	if err != nil {
		return nil, fmt.Errorf("create fabric sdk: %w", err)
	}
	gw, err := gateway.Connect(gateway.WithSDK(sdk), gateway.WithIdentity(fsWallet, user))
	if err != nil {
		sdk.Close()
		return nil, fmt.Errorf("connect gateway as %s: %w", user, err)
	}
	network, err := gw.GetNetwork(cfg.ChannelName)
	if err != nil {
		gw.Close()
		sdk.Close()
		return nil, fmt.Errorf("join channel %s: %w", cfg.ChannelName, err)
	}

	return &FabricSetup{
		gw:       gw,
		sdk:      sdk,
		contract: network.GetContract(cfg.ChaincodeName),
		channel:  cfg.ChannelName,
		cc:       cfg.ChaincodeName,
	}, nil
}

// Recorder returns the observer that writes completed transfers through
// this connection.
func (fs *FabricSetup) Recorder(log *logger.Logger) *TransferRecorder {
	return NewTransferRecorder(fs.contract, log.With("channel", fs.channel, "chaincode", fs.cc))
}

func (fs *FabricSetup) Close() {
	fs.gw.Close()
	fs.sdk.Close()
}
