// Package logx is echse's structured logging: a Logger value over zerolog
// with a console sink for operators and a rotated JSON file sink.
//
// A Logger obtained from a Service follows every Service.Apply, so
// components keep the logger they were built with across config reloads.
package logx
