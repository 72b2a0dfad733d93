// Package ternary 提供泛型三目运算
package ternary

// BV 按布尔值选择返回 trueVar 或 falseVar
func BV[T any](exp bool, trueVar T, falseVar T) T {
	if exp {
		return trueVar
	}
	return falseVar
}
