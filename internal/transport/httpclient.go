package transport

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient возвращает http.Client для upstream API.
// Общего Timeout нет: стрим ответа может идти сколько угодно долго,
// ограничено только ожидание заголовков (headerTimeout, 0 — без ограничения).
func NewHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewAPIClient — клиент для CLI: короткие запросы к relay, стрим без общего таймаута.
func NewAPIClient() *http.Client {
	return NewHTTPClient(2 * time.Minute)
}
