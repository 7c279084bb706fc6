package signing

import "fmt"

// EncodeLatin1 把交易字节逐个映射为 U+0000..U+00FF 的字符
// 交易在 JSON 请求体中以这种字符串形式传输
func EncodeLatin1(tx []byte) string {
	runes := make([]rune, len(tx))
	for i, b := range tx {
		runes[i] = rune(b)
	}
	return string(runes)
}

// DecodeLatin1 EncodeLatin1 的逆操作；出现大于 U+00FF 的字符时报错
func DecodeLatin1(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i, r := range s {
		if r > 0xff {
			return nil, fmt.Errorf("character %U at offset %d is outside latin-1", r, i)
		}
		out = append(out, byte(r))
	}
	return out, nil
}

// EncodePayload 把一批交易编码为请求体
func EncodePayload(txs ...[]byte) []string {
	payload := make([]string, len(txs))
	for i, tx := range txs {
		payload[i] = EncodeLatin1(tx)
	}
	return payload
}
