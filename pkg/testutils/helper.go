package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kasuganosora/sqlscope/pkg/api"
	"github.com/kasuganosora/sqlscope/pkg/session"
)

// LogEntry 一条被记录的日志
type LogEntry struct {
	Level   api.LogLevel
	Message string
	Stack   []string
}

// RecordingLogger 记录所有日志的 Logger，用于断言告警
type RecordingLogger struct {
	mu      sync.Mutex
	level   api.LogLevel
	entries []LogEntry
}

// NewRecordingLogger 创建记录日志器（记录所有级别）
func NewRecordingLogger() *RecordingLogger {
	return &RecordingLogger{level: api.LogDebug}
}

func (l *RecordingLogger) record(level api.LogLevel, stack []string, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{
		Level:   level,
		Message: fmt.Sprintf(format, args...),
		Stack:   stack,
	})
}

func (l *RecordingLogger) Debug(format string, args ...interface{}) {
	l.record(api.LogDebug, nil, format, args...)
}

func (l *RecordingLogger) Info(format string, args ...interface{}) {
	l.record(api.LogInfo, nil, format, args...)
}

func (l *RecordingLogger) Warn(format string, args ...interface{}) {
	l.record(api.LogWarn, nil, format, args...)
}

func (l *RecordingLogger) Error(format string, args ...interface{}) {
	l.record(api.LogError, nil, format, args...)
}

// WarnStack 记录带堆栈的告警
func (l *RecordingLogger) WarnStack(stack []string, format string, args ...interface{}) {
	l.record(api.LogWarn, stack, format, args...)
}

func (l *RecordingLogger) SetLevel(level api.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *RecordingLogger) GetLevel() api.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Entries 返回指定级别的日志
func (l *RecordingLogger) Entries(level api.LogLevel) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Warnings 返回所有告警
func (l *RecordingLogger) Warnings() []LogEntry {
	return l.Entries(api.LogWarn)
}

// Contains 判断是否有包含 substr 的日志
func (l *RecordingLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// FakeSession 记录关闭次数的会话
type FakeSession struct {
	mu         sync.Mutex
	id         string
	closeCount int
	closeErr   error
}

// ID 返回会话ID
func (s *FakeSession) ID() string {
	return s.id
}

// Close 记录关闭
func (s *FakeSession) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCount++
	return s.closeErr
}

// CloseCount 返回 Close 被调用的次数
func (s *FakeSession) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// FakeFactory 可控的会话工厂
type FakeFactory struct {
	mu       sync.Mutex
	created  []*FakeSession
	err      error
	closeErr error
	// OnNewSession 在返回会话前调用（可用于模拟取消）
	OnNewSession func(ctx context.Context)
}

// NewFakeFactory 创建假工厂
func NewFakeFactory() *FakeFactory {
	return &FakeFactory{}
}

// FailWith 令后续 NewSession 返回 err
func (f *FakeFactory) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// CloseFailsWith 令后续创建的会话 Close 返回 err
func (f *FakeFactory) CloseFailsWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeErr = err
}

// NewSession 创建新的 FakeSession
func (f *FakeFactory) NewSession(ctx context.Context) (session.Session, error) {
	f.mu.Lock()
	if f.err != nil {
		err := f.err
		f.mu.Unlock()
		return nil, err
	}
	s := &FakeSession{
		id:       fmt.Sprintf("fake-%d", len(f.created)+1),
		closeErr: f.closeErr,
	}
	f.created = append(f.created, s)
	hook := f.OnNewSession
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	return s, nil
}

// Created 返回已创建的会话
func (f *FakeFactory) Created() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeSession, len(f.created))
	copy(out, f.created)
	return out
}

// CreatedCount 返回已创建的会话数量
func (f *FakeFactory) CreatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}
