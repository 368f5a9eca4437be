package ez

import (
	"net/http"
	"reflect"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"translator-agent/internal/core/logger"
	resp "translator-agent/internal/transport/http/response"
)

type OwnedHooks[T any] struct {
	ScopeList func(c *gin.Context, q *gorm.DB) *gorm.DB // 额外筛选
	AfterGet  func(c *gin.Context, m *T)
}

// OwnedConfig 只读 + 删除的归属资源，按当前用户过滤
type OwnedConfig[T any] struct {
	DB    *gorm.DB
	Group *gin.RouterGroup // 已鉴权分组
	Path  string
	New   func() *T

	Hooks OwnedHooks[T]

	AllowList   bool
	AllowGet    bool
	AllowDelete bool

	IDField    string // 默认 "ID"
	OwnerField string // 默认 "UserID"

	OrderBy      string // 列名，默认 created_at DESC
	ListKey      string // 列表字段名，默认 "list"
	DefaultLimit int    // 默认 20
	MaxLimit     int    // 默认 100
}

type OwnedPage struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

func (c *OwnedConfig[T]) idFields() []string {
	if c.IDField != "" {
		return []string{c.IDField, "ID", "Id"}
	}
	return []string{"ID", "Id"}
}

func (c *OwnedConfig[T]) ownerFields() []string {
	if c.OwnerField != "" {
		return []string{c.OwnerField, "UserID", "OwnerID"}
	}
	return []string{"UserID", "OwnerID"}
}

func stringFieldPtr(obj any, candidates []string) (*string, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Ptr {
		return nil, false
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return nil, false
	}
	t := v.Type()
	for _, cand := range candidates {
		f, ok := t.FieldByName(cand)
		if !ok || f.PkgPath != "" {
			continue
		}
		fv := v.FieldByIndex(f.Index)
		if fv.Kind() == reflect.String && fv.CanSet() {
			return fv.Addr().Interface().(*string), true
		}
	}
	return nil, false
}

func writeStringField(obj any, candidates []string, val string) bool {
	p, ok := stringFieldPtr(obj, candidates)
	if !ok {
		return false
	}
	*p = val
	return true
}

func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// Owned 注册 GET path / GET path/:id / DELETE path/:id
func Owned[T any](cfg OwnedConfig[T]) {
	if !cfg.AllowList && !cfg.AllowGet && !cfg.AllowDelete {
		cfg.AllowList, cfg.AllowGet, cfg.AllowDelete = true, true, true
	}
	if cfg.ListKey == "" {
		cfg.ListKey = "list"
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 100
	}
	idFields, ownerFields := cfg.idFields(), cfg.ownerFields()

	// 用结构体 Where 自动映射列名
	scoped := func(c *gin.Context, id string) (*T, bool) {
		uid := c.GetString(logger.UserIDKey)
		if uid == "" {
			c.JSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "unauthorized"))
			return nil, false
		}
		filter := cfg.New()
		if !writeStringField(filter, ownerFields, uid) {
			c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, "owner field not found"))
			return nil, false
		}
		if id != "" {
			_ = writeStringField(filter, idFields, id)
		}
		return filter, true
	}

	if cfg.AllowList {
		cfg.Group.GET(cfg.Path, func(c *gin.Context) {
			filter, ok := scoped(c, "")
			if !ok {
				return
			}
			page := atoiDefault(c.Query("page"), 1)
			limit := atoiDefault(c.Query("limit"), cfg.DefaultLimit)
			if limit > cfg.MaxLimit {
				limit = cfg.MaxLimit
			}

			q := cfg.DB.WithContext(c).Model(cfg.New()).Where(filter)
			if cfg.Hooks.ScopeList != nil {
				q = cfg.Hooks.ScopeList(c, q)
			}
			var total int64
			if err := q.Count(&total).Error; err != nil {
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, err.Error()))
				return
			}

			if cfg.OrderBy != "" {
				q = q.Order(cfg.OrderBy)
			} else {
				q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: true})
			}
			items := make([]T, 0)
			if err := q.Limit(limit).Offset((page - 1) * limit).Find(&items).Error; err != nil {
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, err.Error()))
				return
			}
			if cfg.Hooks.AfterGet != nil {
				for i := range items {
					cfg.Hooks.AfterGet(c, &items[i])
				}
			}
			c.JSON(http.StatusOK, resp.OK(gin.H{
				cfg.ListKey: items,
				"pagination": OwnedPage{
					Page: page, Limit: limit, Total: total,
					TotalPages: (total + int64(limit) - 1) / int64(limit),
				},
			}))
		})
	}

	if cfg.AllowGet {
		cfg.Group.GET(cfg.Path+"/:id", func(c *gin.Context) {
			filter, ok := scoped(c, c.Param("id"))
			if !ok {
				return
			}
			m := cfg.New()
			if err := cfg.DB.WithContext(c).Where(filter).First(m).Error; err != nil {
				c.JSON(http.StatusOK, resp.Error(resp.CodeNotFound, "not found"))
				return
			}
			if cfg.Hooks.AfterGet != nil {
				cfg.Hooks.AfterGet(c, m)
			}
			c.JSON(http.StatusOK, resp.OK(m))
		})
	}

	if cfg.AllowDelete {
		cfg.Group.DELETE(cfg.Path+"/:id", func(c *gin.Context) {
			id := c.Param("id")
			filter, ok := scoped(c, id)
			if !ok {
				return
			}
			res := cfg.DB.WithContext(c).Where(filter).Delete(cfg.New())
			if res.Error != nil {
				c.JSON(http.StatusOK, resp.Error(resp.CodeServerError, res.Error.Error()))
				return
			}
			if res.RowsAffected == 0 {
				c.JSON(http.StatusOK, resp.Error(resp.CodeNotFound, "not found"))
				return
			}
			c.JSON(http.StatusOK, resp.OK(gin.H{"id": id}))
		})
	}
}
