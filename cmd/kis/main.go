// Package main - kis CLI
// 실시간 체결 스트림 + 종목 점수/순위
//
// 사용법:
//
//	go run ./cmd/kis stream
//	go run ./cmd/kis rank
//	go run ./cmd/kis token
package main

import (
	"os"

	"github.com/Jeongbyungkyu/korea-investment/cmd/kis/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
