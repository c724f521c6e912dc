package config

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/finwire/weblib/httpclient"
)

// EnvAESPassword names the environment variable holding the hex-encoded
// AES-256 key used to decrypt remote configuration documents.
const EnvAESPassword = "WEBLIB_AES_PASSWORD"

// remoteSectionCommon is the document section shared by all applications;
// the section named after the application overrides it.
const remoteSectionCommon = "commonAll"

// LoadRemote fetches an encrypted configuration document through the
// resilient HTTP client and resolves it for appName. The document format is
// two base64 lines: the AES-CBC IV and the ciphertext (PKCS#7 padded). The
// decrypted payload is a JSON object whose "commonAll" section is overlaid
// by the appName section. Environment variables still take highest priority.
func LoadRemote(ctx context.Context, client httpclient.Client, url, appName string) (*Config, error) {
	keyHex := os.Getenv(EnvAESPassword)
	if keyHex == "" {
		return nil, fmt.Errorf("missing %s", EnvAESPassword)
	}

	resp, err := client.Get(ctx, &httpclient.Request{URL: url, Raw: true})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote config: %w", err)
	}

	plaintext, err := decryptDocument(resp.Body, keyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt remote config: %w", err)
	}

	doc := koanf.New(".")
	if err := doc.Load(rawbytes.Provider(plaintext), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse remote config: %w", err)
	}

	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Merge(doc.Cut(remoteSectionCommon)); err != nil {
		return nil, fmt.Errorf("failed to merge common section: %w", err)
	}
	if appName != "" {
		if err := k.Merge(doc.Cut(appName)); err != nil {
			return nil, fmt.Errorf("failed to merge %s section: %w", appName, err)
		}
	}
	if err := loadEnv(k); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return unmarshal(k)
}

// decryptDocument decodes the two-line IV/ciphertext format and performs
// AES-256-CBC decryption with PKCS#7 unpadding.
func decryptDocument(raw []byte, keyHex string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, errors.New("invalid key hex")
	}
	if len(key) < 32 {
		return nil, errors.New("key must be 32 bytes")
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return nil, errors.New("invalid document format: expected IV and ciphertext lines")
	}

	iv, err := base64.StdEncoding.DecodeString(lines[0])
	if err != nil {
		return nil, errors.New("invalid IV")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(lines[1])
	if err != nil {
		return nil, errors.New("invalid ciphertext")
	}

	block, err := aes.NewCipher(key[:32])
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, errors.New("invalid IV length")
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, errors.New("invalid ciphertext length")
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, block.BlockSize())
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errors.New("invalid padding")
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("invalid padding")
		}
	}
	return data[:len(data)-pad], nil
}
