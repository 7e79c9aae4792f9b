// internal/app/app.go
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loreless/ai-service/internal/api"
	"github.com/loreless/ai-service/internal/config"
	"github.com/loreless/ai-service/internal/di"
	"github.com/loreless/ai-service/internal/services"
	"github.com/loreless/ai-service/internal/storage"
	"github.com/loreless/ai-service/internal/utils"
)

// HTTPServer 抽象HTTP服务器，便于测试替换
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 应用程序结构
type App struct {
	config   *config.AppConfig
	router   http.Handler
	server   HTTPServer
	stopChan chan os.Signal
}

// 全局应用实例
var instance *App

// GetApp 获取应用单例
func GetApp() *App {
	if instance == nil {
		instance = &App{
			stopChan: make(chan os.Signal, 1),
		}
	}
	return instance
}

// Initialize 初始化应用：日志、配置、服务、路由
func Initialize(baseDir string) error {
	app := GetApp()

	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}
	app.config = cfg

	logDir := cfg.LogDir
	if logDir == "" {
		logDir = filepath.Join(baseDir, "logs")
	}
	if err := initLogger(logDir); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}

	if err := InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}

	router, err := api.SetupRouter()
	if err != nil {
		return fmt.Errorf("设置路由失败: %w", err)
	}
	app.router = router

	app.server = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	return nil
}

// initLogger 初始化按日期命名的日志文件
func initLogger(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("app_%s.log", time.Now().Format("2006-01-02")))
	return utils.InitLogger(logFile)
}

// InitServices 按依赖顺序初始化所有服务并注册到DI容器
func InitServices() error {
	container := di.GetContainer()
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	// 文件存储，其他服务的持久化基础
	fileStorage, err := storage.NewFileStorage(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("创建文件存储失败: %w", err)
	}
	container.Register("fileCache", fileStorage)

	// LLM服务：未配置API密钥时降级为未就绪状态，不阻断启动
	llmService, err := services.NewLLMService()
	if err != nil {
		utils.GetLogger().Warnf("LLM服务初始化失败，使用未就绪服务: %v", err)
		llmService = services.NewEmptyLLMService()
	}
	container.Register("llm", llmService)

	// 对话记录存储
	conversationService := services.NewConversationService()
	container.Register("conversation", conversationService)

	// 特质与技能目录
	catalogService, err := services.NewCatalogService(fileStorage)
	if err != nil {
		return fmt.Errorf("加载目录数据失败: %w", err)
	}
	container.Register("catalog", catalogService)

	// 提示词模板
	templateService := services.NewTemplateService(fileStorage)
	container.Register("templates", templateService)

	// 世界观上下文，对话服务依赖它
	contextService := services.NewWorldContextService(templateService)
	container.Register("context", contextService)

	// 访谈对话
	dialogueService := services.NewDialogueService(llmService, conversationService, contextService, templateService)
	container.Register("dialogue", dialogueService)

	// 档案合成
	profileService := services.NewProfileService(llmService, conversationService, catalogService, templateService)
	container.Register("profile", profileService)

	// 聚合门面，API层的唯一入口
	aggregateService := services.NewProfileAggregateService(dialogueService, profileService, conversationService)
	container.Register("aggregate", aggregateService)

	return nil
}

// Run 启动HTTP服务器并等待中断信号
func (a *App) Run() error {
	if a.server == nil {
		return fmt.Errorf("应用尚未初始化")
	}

	errChan := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	signal.Notify(a.stopChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("启动服务器失败: %w", err)
	case <-a.stopChan:
		log.Println("🛑 正在关闭服务器...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("服务器强制关闭: %w", err)
	}

	a.cleanup()
	log.Println("✅ 服务器已退出")
	return nil
}

// Stop 触发优雅关闭
func (a *App) Stop() {
	a.stopChan <- syscall.SIGTERM
}

// cleanup 释放资源
func (a *App) cleanup() {
	utils.GetLogger().Close()
}

// GetDIContainer 获取依赖注入容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 当前是否调试模式
func IsDebugMode() bool {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg.DebugMode
	}
	return false
}
