package model

import "time"

// ChatRecord 记录一次问答，只用于回看，不会作为上下文再传给模型。
type ChatRecord struct {
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	TopScore      float64   `json:"topScore"`
	LowConfidence bool      `json:"lowConfidence"`
	Timestamp     time.Time `json:"timestamp"`
}
