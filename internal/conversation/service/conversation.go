package service

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lk2023060901/consensus-backend/internal/auth/middleware"
	"github.com/lk2023060901/consensus-backend/internal/conversation/biz"
	"github.com/lk2023060901/consensus-backend/internal/conversation/types"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/response"
	"go.uber.org/zap"
)

const syncKey = "conversation_sync"

// ConversationService 会话内对话的 HTTP 服务
type ConversationService struct {
	workspaces *biz.Workspaces
}

// NewConversationService 创建对话服务
func NewConversationService(workspaces *biz.Workspaces) *ConversationService {
	return &ConversationService{workspaces: workspaces}
}

// RegisterRoutes 注册对话路由
func (s *ConversationService) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/conversations", s.session)
	g.GET("", s.List)
	g.POST("", s.Create)
	g.DELETE("", s.ClearAll)
	g.POST("/more", s.LoadOlder)
	g.PUT("/current", s.SetCurrent)
	g.GET("/:id", s.Get)
	g.DELETE("/:id", s.Delete)
	g.POST("/:id/save", s.Save)
	g.POST("/:id/messages", s.AddMessage)
	g.POST("/:id/messages/more", s.LoadOlderMessages)
	g.POST("/:id/ask", s.Ask)
}

// session 解析调用方的 workspace，未携带 session id 的请求会分配新 id
func (s *ConversationService) session(c *gin.Context) {
	sessionID := c.GetHeader(logger.SessionHeader)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	c.Header(logger.SessionHeader, sessionID)

	owner, _ := middleware.GetUserID(c)
	ctx := logger.WithSessionID(c.Request.Context(), sessionID)
	c.Request = c.Request.WithContext(ctx)
	c.Set(syncKey, s.workspaces.Get(ctx, sessionID, owner))
	c.Next()

	// 响应已写出，写回失败只记日志
	if err := s.workspaces.Persist(context.WithoutCancel(ctx), sessionID); err != nil {
		logger.L().WithContext(ctx).Warn("failed to persist session", zap.Error(err))
	}
}

func syncOf(c *gin.Context) *biz.Sync {
	return c.MustGet(syncKey).(*biz.Sync)
}

// List 返回会话的对话列表（不含消息）
func (s *ConversationService) List(c *gin.Context) {
	response.Success(c, toListDTO(syncOf(c).Store().Snapshot()))
}

// Create 创建临时对话
func (s *ConversationService) Create(c *gin.Context) {
	var req struct {
		Kind string `json:"kind"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}

	conv := syncOf(c).CreateConversation(c.Request.Context(), req.Kind)
	response.Success(c, toConversationDTO(conv, true))
}

// ClearAll 清空会话的内存对话
func (s *ConversationService) ClearAll(c *gin.Context) {
	syncOf(c).Store().ClearAll()
	response.Success(c, nil)
}

// LoadOlder 加载下一页已保存的对话
func (s *ConversationService) LoadOlder(c *gin.Context) {
	sync := syncOf(c)
	if err := sync.LoadOlderConversations(c.Request.Context()); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, toListDTO(sync.Store().Snapshot()))
}

// SetCurrent 选中对话，id 为空时取消选中
func (s *ConversationService) SetCurrent(c *gin.Context) {
	var req struct {
		ID string `json:"id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	st := syncOf(c).Store()
	id := req.ID
	if id != "" {
		conv, ok := st.Conversation(id)
		if !ok {
			response.Fail(c, apperrors.New(apperrors.ErrConversationNotFound, id))
			return
		}
		id = conv.ID
	}
	st.SetCurrent(id)
	response.Success(c, gin.H{"current_id": id})
}

// Get 返回单个对话及已加载的消息
func (s *ConversationService) Get(c *gin.Context) {
	conv, ok := syncOf(c).Store().Conversation(c.Param("id"))
	if !ok {
		response.Fail(c, apperrors.New(apperrors.ErrConversationNotFound, c.Param("id")))
		return
	}
	response.Success(c, toConversationDTO(conv, true))
}

// Delete 从本地和后端删除对话
func (s *ConversationService) Delete(c *gin.Context) {
	if err := syncOf(c).DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Save 持久化对话及其消息
func (s *ConversationService) Save(c *gin.Context) {
	id, err := syncOf(c).SaveConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "saved": id != ""})
}

// AddMessage 追加消息，对话已保存时同步持久化
func (s *ConversationService) AddMessage(c *gin.Context) {
	var req struct {
		Role     string `json:"role" binding:"required"`
		Content  string `json:"content" binding:"required"`
		Provider string `json:"provider"`
		Model    string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	id, err := syncOf(c).AddMessage(c.Request.Context(), c.Param("id"), types.Role(req.Role), req.Content, req.Provider, req.Model)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"id": id, "persisted": id != ""})
}

// LoadOlderMessages 加载已保存对话的下一页消息
func (s *ConversationService) LoadOlderMessages(c *gin.Context) {
	sync := syncOf(c)
	id := c.Param("id")
	if err := sync.LoadOlderMessages(c.Request.Context(), id); err != nil {
		response.Fail(c, err)
		return
	}
	conv, ok := sync.Store().Conversation(id)
	if !ok {
		response.Fail(c, apperrors.New(apperrors.ErrConversationNotFound, id))
		return
	}
	response.Success(c, toConversationDTO(conv, true))
}

// Ask 向指定 Provider 发送内容并返回助手回复
func (s *ConversationService) Ask(c *gin.Context) {
	var req struct {
		Provider string `json:"provider" binding:"required"`
		Content  string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	msg, err := syncOf(c).Ask(c.Request.Context(), c.Param("id"), req.Provider, req.Content)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, toMessageDTO(msg))
}
