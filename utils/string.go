package utils

import "unsafe"

// B2S 无拷贝转换 []byte 为 string
func B2S(b []byte) string {
	size := len(b)
	if size == 0 {
		return ""
	}
	return unsafe.String(&b[0], size)
}

// S2B 无拷贝转换 string 为 []byte
func S2B(s string) (b []byte) {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
