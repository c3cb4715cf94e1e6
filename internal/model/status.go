package model

import "time"

// StatusCheck はクライアントからの死活報告を表す。
type StatusCheck struct {
	ID         string
	ClientName string
	Timestamp  time.Time
}
