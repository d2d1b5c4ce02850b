// Package entity defines the response envelope shared by every endpoint.
package entity

// Msg is the JSON envelope of every response. Code is set on failures.
type Msg struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg"`
	Code    string `json:"code,omitempty"`
	Obj     any    `json:"obj"`
}
