// Package api 處理 HTTP 請求路由和處理。
//
// 所有房間操作都以房間代碼定位，並需要有效的身分 token。
// 處理器把 HTTP 請求轉換為 service.Coordinator 的呼叫，並把 service 錯誤轉成對應的狀態碼。
package api
