package utils

import "strings"

// ExtractHost 从 ws:// 或 wss:// 地址中提取主机名, 供握手 Host 头使用.
// 端口与路径一并剥离, 无法识别的地址返回空串.
func ExtractHost(url string) string {
	host, ok := strings.CutPrefix(url, "ws://")
	if !ok {
		host, ok = strings.CutPrefix(url, "wss://")
	}
	if !ok {
		return ""
	}
	host, _, _ = strings.Cut(host, "/")
	host, _, _ = strings.Cut(host, ":")
	return host
}
