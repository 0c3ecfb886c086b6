package types

import "encoding/json"

const redacted = "******"

// Secret 不透明的凭据，格式化与序列化时均被遮蔽
type Secret struct {
	value string
}

// NewSecret 包装明文凭据
func NewSecret(value string) Secret {
	return Secret{value: value}
}

// Reveal 返回明文，仅供适配器建立连接时使用
func (s Secret) Reveal() string {
	return s.value
}

// IsZero 是否未设置
func (s Secret) IsZero() bool {
	return s.value == ""
}

func (s Secret) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

// GoString 防止 %#v 泄露明文
func (s Secret) GoString() string {
	return s.String()
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}
