package controller

import (
	"docquiz_backend/internal/service"
	"docquiz_backend/internal/util"
	"errors"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
}

func NewQuizController(quizService *service.QuizService) *QuizController {
	return &QuizController{QuizService: quizService}
}

// GenerateQuizRequest defines model for quiz generation
// swagger:model GenerateQuizRequest
type GenerateQuizRequest struct {
	DocumentID    string   `json:"documentId" binding:"required"`
	QuestionCount int      `json:"questionCount" binding:"required"`
	FocusAreas    []string `json:"focusAreas"`
}

// Generate godoc
// @Summary 发起出题任务
// @Description 对指定文档异步生成选择题试卷，返回任务 ID 供轮询
// @Tags 试卷
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   body body GenerateQuizRequest true "出题参数"
// @Success 202 {object} util.Response{data=object} "任务已受理"
// @Failure 400 {object} util.Response "题目数量不合法"
// @Failure 404 {object} util.Response "文档不存在"
// @Failure 409 {object} util.Response "同一文档已有进行中的任务"
// @Router /api/quizzes/generate [post]
func (c *QuizController) Generate(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req GenerateQuizRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	job, quiz, err := c.QuizService.GenerateQuiz(ctx.Request.Context(), claims.UserID, req.DocumentID, req.QuestionCount, req.FocusAreas)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrInvalidQuestionCount):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrDocumentNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrGenerationInProgress):
			util.Conflict(ctx, err.Error(), gin.H{"existingJobId": job.ID})
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Accepted(ctx, gin.H{
		"jobId":  job.ID,
		"quizId": quiz.ID,
		"status": job.Status,
	})
}

// JobStatus godoc
// @Summary 出题任务状态
// @Description 轮询任务状态；失败的任务返回错误信息
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "任务 ID"
// @Success 200 {object} util.Response{data=service.JobStatusView} "成功"
// @Failure 404 {object} util.Response "任务不存在"
// @Router /api/jobs/{id} [get]
func (c *QuizController) JobStatus(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.QuizService.GetJobStatus(claims.UserID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrJobNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, view)
}

// Get godoc
// @Summary 试卷详情
// @Description 返回试卷及题目，不包含正确答案和解析
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "试卷 ID"
// @Success 200 {object} util.Response{data=service.QuizView} "成功"
// @Failure 404 {object} util.Response "试卷不存在"
// @Router /api/quizzes/{id} [get]
func (c *QuizController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.QuizService.GetQuiz(claims.UserID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrQuizNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, view)
}

// List godoc
// @Summary 试卷列表
// @Description 返回当前用户的全部试卷
// @Tags 试卷
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Quiz} "成功"
// @Router /api/quizzes [get]
func (c *QuizController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	quizzes, err := c.QuizService.ListQuizzes(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, quizzes)
}
