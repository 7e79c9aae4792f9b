// internal/app/app_test.go
package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// 测试创建模拟服务器
type mockServer struct {
	ShutdownCalled bool
}

func (m *mockServer) ListenAndServe() error {
	return nil
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	m.ShutdownCalled = true
	return nil
}

// TestGetApp 测试获取应用实例
func TestGetApp(t *testing.T) {
	// 重置全局实例
	instance = nil

	app1 := GetApp()
	if app1 == nil {
		t.Fatal("GetApp应该返回一个非nil的应用实例")
	}

	// 再次调用应返回相同的实例（单例模式）
	app2 := GetApp()
	if app1 != app2 {
		t.Fatal("GetApp应该返回相同的实例")
	}

	if app1.stopChan == nil {
		t.Fatal("应用实例的stopChan应该被初始化")
	}

	instance = nil
}

// TestRunWithoutInitialize 未初始化时Run应返回错误
func TestRunWithoutInitialize(t *testing.T) {
	instance = nil
	defer func() { instance = nil }()

	app := GetApp()
	if err := app.Run(); err == nil {
		t.Fatal("未初始化的应用Run应该返回错误")
	}
}

// TestRunGracefulShutdown 测试优雅关闭流程
func TestRunGracefulShutdown(t *testing.T) {
	instance = nil
	defer func() { instance = nil }()

	app := GetApp()
	server := &mockServer{}
	app.server = server

	done := make(chan error, 1)
	go func() {
		done <- app.Run()
	}()

	// 等待服务器启动后触发关闭
	time.Sleep(50 * time.Millisecond)
	app.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("优雅关闭不应返回错误: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run没有在关闭信号后退出")
	}

	if !server.ShutdownCalled {
		t.Fatal("关闭流程应该调用服务器的Shutdown")
	}
}

// TestInitLogger 测试日志初始化创建按日期命名的日志文件
func TestInitLogger(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "app_test_*")
	if err != nil {
		t.Fatalf("创建临时测试目录失败: %v", err)
	}
	defer os.RemoveAll(tempDir)

	logDir := filepath.Join(tempDir, "logs")
	if err := initLogger(logDir); err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("读取日志目录失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("日志目录应包含一个日志文件，实际为%d个", len(entries))
	}
}

// TestGetDIContainer 测试容器访问
func TestGetDIContainer(t *testing.T) {
	if GetDIContainer() == nil {
		t.Fatal("GetDIContainer应该返回非nil的容器")
	}
}

// 确认HTTPServer接口与标准库的http.Server兼容
var _ HTTPServer = (*http.Server)(nil)
