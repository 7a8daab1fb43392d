package service

import (
	"context"

	"compow-alarm/internal/models"
	"compow-alarm/internal/state"

	"go.uber.org/zap"
)

// LocationProvider 定位底座（GPS/平台定位服务）
// 当前不可定位时返回 (nil, nil) 或错误
type LocationProvider interface {
	CurrentLocation(ctx context.Context) (*models.Location, error)
}

// Locator 带缓存回退的定位器
// 新鲜定位成功则回写缓存；失败回退到最近一次缓存；都没有返回 nil
// 定位永远不中断报警流程，所以不向调用方返回错误
type Locator struct {
	provider     LocationProvider
	stateManager *state.StateManager
	logger       *zap.Logger
}

// NewLocator 创建定位器，provider 可以为 nil（纯缓存模式）
func NewLocator(provider LocationProvider, stateManager *state.StateManager, logger *zap.Logger) *Locator {
	return &Locator{
		provider:     provider,
		stateManager: stateManager,
		logger:       logger,
	}
}

// GetWithFallback 获取定位：新鲜定位 → 缓存 → nil
func (l *Locator) GetWithFallback(ctx context.Context) *models.Location {
	if l.provider != nil {
		loc, err := l.provider.CurrentLocation(ctx)
		if err != nil {
			l.logger.Warn("Location provider failed, falling back to cache",
				zap.Error(err),
			)
		} else if loc != nil {
			if err := l.stateManager.SetLastLocation(ctx, *loc); err != nil {
				l.logger.Warn("Failed to cache location", zap.Error(err))
			}
			return loc
		}
	}

	cached, err := l.stateManager.GetLastLocation(ctx)
	if err != nil {
		l.logger.Warn("Failed to read cached location", zap.Error(err))
		return nil
	}
	return cached
}
