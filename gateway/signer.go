package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// SignParams 将参数编码为确定顺序的查询串并生成 HMAC-SHA256 签名。
// secret 为空时只返回查询串（公共端点）。
func SignParams(params map[string]string, secret string) (query, signature string) {
	if len(params) == 0 {
		return "", ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params[k]))
	}
	query = strings.Join(parts, "&")

	if secret == "" {
		return query, ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return query, hex.EncodeToString(mac.Sum(nil))
}
