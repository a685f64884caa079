package log

import (
	"context"
)

// Nop 空日志器，组件未配置日志时的默认实现
type Nop struct{}

func NewNop() *Nop {
	return &Nop{}
}

func (l *Nop) Debug(msg string, args ...any) {}
func (l *Nop) Info(msg string, args ...any)  {}
func (l *Nop) Warn(msg string, args ...any)  {}
func (l *Nop) Error(msg string, args ...any) {}

func (l *Nop) DebugContext(ctx context.Context, msg string, args ...any) {}
func (l *Nop) InfoContext(ctx context.Context, msg string, args ...any)  {}
func (l *Nop) WarnContext(ctx context.Context, msg string, args ...any)  {}
func (l *Nop) ErrorContext(ctx context.Context, msg string, args ...any) {}

func (l *Nop) With(args ...any) Logger      { return l }
func (l *Nop) WithGroup(name string) Logger { return l }
