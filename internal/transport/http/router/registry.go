package router

import (
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
)

// APIModule pub 为 /api/v1 公共分组，authed 为同前缀的已登录分组
type APIModule interface {
	MountAPI(pub, authed *gin.RouterGroup)
}

type AdminModule interface{ MountAdmin(*gin.RouterGroup) }

// 可选：数值越小越先挂，默认 100
type prioritizer interface{ Priority() int }

var (
	mu        sync.RWMutex
	apiMods   []APIModule
	adminMods []AdminModule
)

// Register 按实现的接口分发到 API / Admin 列表
func Register(mods ...any) {
	mu.Lock()
	defer mu.Unlock()
	for _, mod := range mods {
		if m, ok := mod.(APIModule); ok {
			apiMods = append(apiMods, m)
		}
		if m, ok := mod.(AdminModule); ok {
			adminMods = append(adminMods, m)
		}
	}
}

func MountAllAPI(pub, authed *gin.RouterGroup) {
	mu.RLock()
	mods := append([]APIModule(nil), apiMods...)
	mu.RUnlock()

	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAPI(pub, authed)
	}
}

func MountAllAdmin(admin *gin.RouterGroup) {
	mu.RLock()
	mods := append([]AdminModule(nil), adminMods...)
	mu.RUnlock()

	sort.SliceStable(mods, func(i, j int) bool {
		return priorityOf(mods[i]) < priorityOf(mods[j])
	})
	for _, m := range mods {
		m.MountAdmin(admin)
	}
}

func priorityOf(v any) int {
	if p, ok := v.(prioritizer); ok {
		return p.Priority()
	}
	return 100
}
