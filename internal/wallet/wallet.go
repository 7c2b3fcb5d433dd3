// internal/wallet/wallet.go
package wallet

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperledger/fabric-sdk-go/pkg/gateway"
)

// PopulateWallet stores the X.509 identity for userName unless the wallet
// already has one.
func PopulateWallet(w *gateway.Wallet, mspID, userName, certPath, keyDir string) error {
	if w.Exists(userName) {
		return nil
	}

	cert, err := os.ReadFile(filepath.Clean(certPath))
	if err != nil {
		return fmt.Errorf("read certificate: %w", err)
	}

	keyPath, err := findPrivateKey(keyDir)
	if err != nil {
		return err
	}
	key, err := os.ReadFile(filepath.Clean(keyPath))
	if err != nil {
		return fmt.Errorf("read private key: %w", err)
	}

	identity := gateway.NewX509Identity(mspID, string(cert), string(key))
	return w.Put(userName, identity)
}

// findPrivateKey picks the first *_sk file in dir (the Fabric CA naming),
// falling back to the first regular file.
func findPrivateKey(dir string) (string, error) {
	var fallback, sk string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if fallback == "" {
			fallback = path
		}
		if strings.HasSuffix(d.Name(), "_sk") {
			sk = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan key directory %s: %w", dir, err)
	}
	if sk != "" {
		return sk, nil
	}
	if fallback == "" {
		return "", fmt.Errorf("no private key found in directory %s", dir)
	}
	return fallback, nil
}
