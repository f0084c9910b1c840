package controller

import (
	"docquiz_backend/internal/config"
	"docquiz_backend/internal/service"
	"docquiz_backend/internal/util"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

type DocumentController struct {
	DocumentService *service.DocumentService
	MaxUploadMB     int64
}

func NewDocumentController(documentService *service.DocumentService, cfg *config.Config) *DocumentController {
	return &DocumentController{
		DocumentService: documentService,
		MaxUploadMB:     cfg.Storage.MaxUploadMB,
	}
}

// Upload godoc
// @Summary 上传文档
// @Description 上传 PDF 文档，作为后续出题的素材
// @Tags 文档
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   file formData file true "PDF 文件"
// @Success 201 {object} util.Response{data=model.Document} "上传成功"
// @Failure 400 {object} util.Response "文件缺失或类型不支持"
// @Failure 401 {object} util.Response "未授权"
// @Failure 413 {object} util.Response "文件过大"
// @Router /api/documents/upload [post]
func (c *DocumentController) Upload(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少 file 字段")
		return
	}

	maxBytes := c.MaxUploadMB << 20
	if fileHeader.Size > maxBytes {
		util.Error(ctx, 413, fmt.Sprintf("文件大小超过 %dMB 限制", c.MaxUploadMB))
		return
	}

	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		util.BadRequest(ctx, "仅支持 PDF 文件")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	doc, err := c.DocumentService.Upload(ctx.Request.Context(), claims.UserID, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Created(ctx, doc)
}

// List godoc
// @Summary 文档列表
// @Description 返回当前用户上传的全部文档
// @Tags 文档
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.Document} "成功"
// @Failure 401 {object} util.Response "未授权"
// @Router /api/documents [get]
func (c *DocumentController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	docs, err := c.DocumentService.ListDocuments(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, docs)
}

// Get godoc
// @Summary 文档详情
// @Description 返回单个文档的元信息
// @Tags 文档
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "文档 ID"
// @Success 200 {object} util.Response{data=model.Document} "成功"
// @Failure 404 {object} util.Response "文档不存在"
// @Router /api/documents/{id} [get]
func (c *DocumentController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	doc, err := c.DocumentService.GetDocument(claims.UserID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, util.ErrDocumentNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, doc)
}
