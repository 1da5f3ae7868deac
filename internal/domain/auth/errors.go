package auth

import "errors"

var (
	// ErrIssuanceFailed 발급 실패 (원인은 wrap)
	ErrIssuanceFailed = errors.New("credential issuance failed")

	// ErrIssuanceTimeout 발급 응답 시간 초과
	ErrIssuanceTimeout = errors.New("credential issuance timed out")

	// ErrRateLimited EGW00133: 1분당 1회 발급 제한
	ErrRateLimited = errors.New("credential issuance rate limited")
)
