package service

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/lk2023060901/consensus-backend/internal/pkg/errors"
	"github.com/lk2023060901/consensus-backend/internal/pkg/logger"
	"github.com/lk2023060901/consensus-backend/internal/pkg/response"
	"github.com/lk2023060901/consensus-backend/internal/pkg/sse"
	"github.com/lk2023060901/consensus-backend/internal/quiz/biz"
	"github.com/lk2023060901/consensus-backend/internal/quiz/types"
	"go.uber.org/zap"
)

const eventsHeartbeat = 15 * time.Second

// QuizService 问题及其聚合答案的 HTTP 服务
type QuizService struct {
	aggregator *biz.Aggregator
	hub        *sse.Hub
}

// NewQuizService 创建 quiz 服务
func NewQuizService(aggregator *biz.Aggregator, hub *sse.Hub) *QuizService {
	return &QuizService{aggregator: aggregator, hub: hub}
}

// RegisterRoutes 注册 quiz 路由
func (s *QuizService) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/questions", s.Submit)
	r.GET("/questions", s.List)
	r.GET("/questions/view", s.View)
	r.GET("/questions/events", s.Events)
	r.PUT("/questions/key", s.SetKey)
	r.DELETE("/questions", s.Remove)
}

// SubmitRequest 预处理器提交的问题
type SubmitRequest struct {
	Question       string         `json:"question" binding:"required"`
	QuestionNumber string         `json:"question_number"`
	Choices        []types.Choice `json:"choices"`
	Grounding      bool           `json:"grounding"`
	Wait           bool           `json:"wait"` // 等待所有 Provider 返回后再响应
	Width          int            `json:"width"`
}

// Submit 将问题分发给所有 Provider
func (s *QuizService) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	f, err := s.aggregator.Submit(c.Request.Context(), biz.Input{
		Text:      req.Question,
		Number:    req.QuestionNumber,
		Choices:   req.Choices,
		Grounding: req.Grounding,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	if !req.Wait {
		response.Accepted(c, gin.H{"question": f.Ref.Text, "providers": f.Providers})
		return
	}
	if err := f.Wait(c.Request.Context()); err != nil {
		response.Fail(c, apperrors.Wrap(err, apperrors.ErrServiceUnavail, "waiting for providers"))
		return
	}

	view, err := s.aggregator.View(f.Ref.Text, req.Width)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// List 返回全部问题及答案，最新的在前
func (s *QuizService) List(c *gin.Context) {
	questions := s.aggregator.List()
	views := make([]biz.QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, biz.BuildView(q, nil, 0))
	}
	response.Success(c, views)
}

// View 返回单个问题的展示状态，指定 width 时按行排版
func (s *QuizService) View(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		response.BadRequest(c, "text is required")
		return
	}

	width := 0
	if w := c.Query("width"); w != "" {
		var err error
		if width, err = strconv.Atoi(w); err != nil || width < 0 {
			response.BadRequest(c, "width must be a non-negative integer")
			return
		}
	}

	view, err := s.aggregator.View(text, width)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, view)
}

// SetKeyRequest 设置答案的 key，key 为 null 或空时清除
type SetKeyRequest struct {
	Text        string  `json:"text" binding:"required"`
	AnswerIndex *int    `json:"answer_index" binding:"required"`
	Key         *string `json:"key"`
}

// SetKey 修改单个答案的显式 key
func (s *QuizService) SetKey(c *gin.Context) {
	var req SetKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	q, err := s.aggregator.SetAnswerKey(req.Text, *req.AnswerIndex, req.Key)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, biz.BuildView(q, nil, 0))
}

// Remove 从看板移除问题
func (s *QuizService) Remove(c *gin.Context) {
	text := c.Query("text")
	if text == "" {
		response.BadRequest(c, "text is required")
		return
	}
	if err := s.aggregator.Remove(text); err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, nil)
}

// Events 以 SSE 推送看板变更，指定 text 时只推送该问题
func (s *QuizService) Events(c *gin.Context) {
	if s.hub == nil {
		response.Fail(c, apperrors.New(apperrors.ErrServiceUnavail, "event stream disabled"))
		return
	}

	topic := sse.AllTopics
	if text := c.Query("text"); text != "" {
		topic = biz.QuestionTopic(text)
	}

	log := logger.L().WithContext(c.Request.Context())
	stream := sse.NewStream(c, s.hub).
		WithTopic(topic).
		WithHeartbeat(eventsHeartbeat).
		OnError(func(err error) {
			log.Debug("event stream write failed", zap.Error(err))
		}).
		Build()
	log.Debug("event stream opened", zap.String("client_id", stream.ClientID()), zap.String("topic", topic))
	stream.Serve()
}
