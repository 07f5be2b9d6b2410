package clog

import "context"

// discard 是各组件未传入 WithLogger 时的默认日志器，所有输出都被丢弃
type discard struct{}

var discardLogger Logger = &discard{}

// Discard 返回静默日志器
//
// ratelimit、breaker、retry 等组件默认使用它，测试中也可直接传入以屏蔽日志：
//
//	registry, _ := ratelimit.New(cfg, ratelimit.WithLogger(clog.Discard()))
//
// With 与 WithNamespace 返回同一个实例，不产生分配。
func Discard() Logger {
	return discardLogger
}

func (d *discard) Debug(string, ...Field)                          {}
func (d *discard) Info(string, ...Field)                           {}
func (d *discard) Warn(string, ...Field)                           {}
func (d *discard) Error(string, ...Field)                          {}
func (d *discard) Fatal(string, ...Field)                          {}
func (d *discard) DebugContext(context.Context, string, ...Field) {}
func (d *discard) InfoContext(context.Context, string, ...Field)  {}
func (d *discard) WarnContext(context.Context, string, ...Field)  {}
func (d *discard) ErrorContext(context.Context, string, ...Field) {}
func (d *discard) FatalContext(context.Context, string, ...Field) {}

func (d *discard) With(...Field) Logger          { return d }
func (d *discard) WithNamespace(...string) Logger { return d }
func (d *discard) SetLevel(Level) error           { return nil }
func (d *discard) Flush()                         {}
