// Package middleware 提供了 HTTP 請求處理的中間件。
//
// 包含 JWT 身分驗證、請求日誌與以 Redis 為後端的限流。
package middleware
