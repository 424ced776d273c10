package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

// FieldCipher 敏感字段加密器（AES-256-GCM）
//
// 设备序列号和网络地址在离开本子系统信任边界前必须加密，
// 密文格式：base64(nonce || ciphertext)。
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher 创建字段加密器
// key 接受原始 32 字节字符串或 hex 编码的 32 字节密钥
func NewFieldCipher(key string) (*FieldCipher, error) {
	var keyBytes []byte
	if len(key) == 32 {
		keyBytes = []byte(key)
	} else {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("encryption key must be 32 raw bytes or 64 hex chars")
		}
		keyBytes = decoded
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &FieldCipher{aead: aead}, nil
}

// Encrypt 加密字段值
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密字段值
func (c *FieldCipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plaintext), nil
}
