package pkgfetcher

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// ErrBadSignature marks a package whose detached signature does not verify.
var ErrBadSignature = errors.New("signature verification failed")

const armorHeader = "-----BEGIN PGP"

// LoadKeyring reads an armored or binary OpenPGP public keyring.
func LoadKeyring(path string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	var keyring openpgp.EntityList
	if bytes.Contains(data, []byte(armorHeader)) {
		keyring, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	} else {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parse keyring %s: %w", path, err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring %s contains no keys", path)
	}
	return keyring, nil
}

// VerifyDetached checks sigPath as a detached signature of filePath and returns
// a description of the signing key.
func VerifyDetached(keyring openpgp.EntityList, filePath, sigPath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	sigFile, err := os.Open(sigPath)
	if err != nil {
		return "", fmt.Errorf("open signature: %w", err)
	}
	defer sigFile.Close()

	sig := bufio.NewReader(sigFile)
	var signer *openpgp.Entity
	if isArmored(sig) {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring, file, sig, nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(keyring, file, sig, nil)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", filePath, ErrBadSignature, err)
	}
	return describe(signer), nil
}

func isArmored(r *bufio.Reader) bool {
	head, err := r.Peek(len(armorHeader))
	if err != nil && err != io.EOF {
		return false
	}
	return bytes.Equal(head, []byte(armorHeader))
}

func describe(e *openpgp.Entity) string {
	if e == nil || e.PrimaryKey == nil {
		return "unknown key"
	}
	for name := range e.Identities {
		return fmt.Sprintf("%s [%X]", name, e.PrimaryKey.Fingerprint)
	}
	return fmt.Sprintf("%X", e.PrimaryKey.Fingerprint)
}
