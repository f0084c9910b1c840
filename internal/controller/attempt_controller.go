package controller

import (
	"docquiz_backend/internal/service"
	"docquiz_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
}

func NewAttemptController(attemptService *service.AttemptService) *AttemptController {
	return &AttemptController{AttemptService: attemptService}
}

// Start godoc
// @Summary 开始作答
// @Description 对 ready 状态的试卷开启一次作答
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "试卷 ID"
// @Success 201 {object} util.Response{data=model.QuizAttempt} "作答已创建"
// @Failure 400 {object} util.Response "试卷未就绪"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/quizzes/{id}/attempts [post]
func (c *AttemptController) Start(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempt, err := c.AttemptService.StartAttempt(claims.UserID, ctx.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, util.ErrQuizNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrQuizNotReady):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, attempt)
}

// SubmitAttemptRequest defines model for submitting answers
// swagger:model SubmitAttemptRequest
type SubmitAttemptRequest struct {
	Answers []service.SubmittedAnswer `json:"answers" binding:"required"`
}

// Submit godoc
// @Summary 提交作答
// @Description 提交答案并判分，返回逐题结果。每次作答只能提交一次
// @Tags 作答
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Param   body body SubmitAttemptRequest true "答案列表"
// @Success 200 {object} util.Response{data=service.AttemptResultView} "判分结果"
// @Failure 400 {object} util.Response "选项下标不合法"
// @Failure 404 {object} util.Response "作答不存在"
// @Failure 409 {object} util.Response "重复提交"
// @Router /api/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AttemptService.SubmitAttempt(claims.UserID, ctx.Param("id"), req.Answers)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAttemptNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrInvalidAnswer):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrAttemptAlreadySubmitted):
			util.Conflict(ctx, err.Error(), nil)
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// List godoc
// @Summary 作答历史
// @Description 返回当前用户的全部作答记录
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.QuizAttempt} "成功"
// @Router /api/attempts [get]
func (c *AttemptController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempts, err := c.AttemptService.ListAttempts(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, attempts)
}

// Get godoc
// @Summary 作答详情
// @Description 已提交的作答返回逐题判分回放，未提交的只返回状态
// @Tags 作答
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "作答 ID"
// @Success 200 {object} util.Response{data=service.AttemptResultView} "成功"
// @Failure 404 {object} util.Response "作答不存在"
// @Router /api/attempts/{id} [get]
func (c *AttemptController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.AttemptService.GetAttemptDetail(claims.UserID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrAttemptNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, view)
}
