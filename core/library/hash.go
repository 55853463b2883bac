package library

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPayload 计算二进制负载的内容哈希（hex 编码的 SHA-256）。
// 合并协议只比较哈希是否相等，哈希必须且只能由原始音频字节算出。
func HashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
