package errors

import "net/http"

// OK is the code carried by successful envelopes.
var OK = define(ServiceCommon, CategorySuccess, 0, http.StatusOK, "Success", "成功")

// 通用错误
var (
	ErrBadRequest       = define(ServiceCommon, CategoryRequest, 0, http.StatusBadRequest, "Bad request", "请求错误")
	ErrInvalidParam     = define(ServiceCommon, CategoryRequest, 1, http.StatusBadRequest, "Invalid parameter", "参数无效")
	ErrValidationFailed = define(ServiceCommon, CategoryRequest, 4, http.StatusBadRequest, "Validation failed", "验证失败")
	ErrRequestTooLarge  = define(ServiceCommon, CategoryRequest, 5, http.StatusRequestEntityTooLarge, "Request entity too large", "请求体过大")
	ErrRouteNotFound    = define(ServiceCommon, CategoryResource, 4, http.StatusNotFound, "Route not found", "路由不存在")
	ErrInternal         = define(ServiceCommon, CategoryInternal, 0, http.StatusInternalServerError, "Internal server error", "服务器内部错误")
	ErrPanic            = define(ServiceCommon, CategoryInternal, 2, http.StatusInternalServerError, "Internal server panic", "服务器内部异常")
)

// CyPlan 业务错误 (服务代码 30)
var (
	ErrInvalidRiskInput    = define(ServiceCyPlan, CategoryRequest, 1, http.StatusBadRequest, "Likelihood and impact must be between 1 and 5", "可能性和影响必须在 1 到 5 之间")
	ErrInvalidIngestInput  = define(ServiceCyPlan, CategoryRequest, 2, http.StatusBadRequest, "Invalid ingestion request", "导入请求无效")
	ErrUnsupportedFileType = define(ServiceCyPlan, CategoryRequest, 3, http.StatusBadRequest, "Unsupported file type", "不支持的文件类型")
	ErrEmptyMessages       = define(ServiceCyPlan, CategoryRequest, 4, http.StatusBadRequest, "No messages provided", "未提供消息")

	ErrPlanNotFound      = define(ServiceCyPlan, CategoryResource, 2, http.StatusNotFound, "Plan not found", "计划不存在")
	ErrFrameworkNotFound = define(ServiceCyPlan, CategoryResource, 3, http.StatusNotFound, "Framework not found", "框架不存在")
	ErrSessionNotFound   = define(ServiceCyPlan, CategoryResource, 4, http.StatusNotFound, "Session not found", "会话不存在")
	ErrLibraryNotFound   = define(ServiceCyPlan, CategoryResource, 5, http.StatusNotFound, "Library not found", "文档库不存在")

	ErrIngestFailed   = define(ServiceCyPlan, CategoryInternal, 1, http.StatusInternalServerError, "Document ingestion failed", "文档导入失败")
	ErrToolFailed     = define(ServiceCyPlan, CategoryInternal, 3, http.StatusInternalServerError, "Tool execution failed", "工具执行失败")
	ErrAgentRunFailed = define(ServiceCyPlan, CategoryInternal, 4, http.StatusInternalServerError, "Agent run failed", "智能体运行失败")
	ErrSummaryFailed  = define(ServiceCyPlan, CategoryInternal, 5, http.StatusInternalServerError, "Plan summary generation failed", "计划摘要生成失败")

	ErrModelTimeout           = define(ServiceCyPlan, CategoryTimeout, 1, http.StatusGatewayTimeout, "Model call timed out", "模型调用超时")
	ErrLLMNotConfigured       = define(ServiceCyPlan, CategoryConfig, 1, http.StatusServiceUnavailable, "Chat model is not configured", "对话模型未配置")
	ErrEmbeddingNotConfigured = define(ServiceCyPlan, CategoryConfig, 2, http.StatusServiceUnavailable, "Embedding model is not configured", "向量模型未配置")

	ErrLLMUpstream = define(ServiceThirdPartyLLM, CategoryNetwork, 1, http.StatusBadGateway, "Model provider request failed", "模型供应商请求失败")
)
